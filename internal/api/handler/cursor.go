package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/glue-pipeline/shared/database"
)

func DecodeCursor(cursorStr string) (*database.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 || decodedParts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var at int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &at)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	return &database.Cursor{
		At: time.Unix(0, at).UTC(),
		ID: decodedParts[1],
	}, nil
}

func EncodeCursor(cursor *database.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.At.UnixNano(), cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}

func pageSize(requested int) int {
	if requested <= 0 {
		return 20
	}
	if requested > 100 {
		return 100
	}
	return requested
}
