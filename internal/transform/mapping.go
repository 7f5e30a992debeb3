// Package transform implements the json-to-parquet job: it reads the
// records of a catalog table, projects them through a column mapping,
// evaluates the data quality ruleset and writes snappy parquet output.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const TypeString = "string"

var ErrUnsupportedType = errors.New("unsupported column type")

// Record is one decoded source object.
type Record map[string]any

// Mapping renames and casts a single source column.
type Mapping struct {
	SourceName string `json:"source_name"`
	SourceType string `json:"source_type"`
	TargetName string `json:"target_name"`
	TargetType string `json:"target_type"`
}

// Field is an output column.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Row holds one value per schema field; nil is null.
type Row []*string

// Frame is the mapped result set.
type Frame struct {
	Schema []Field
	Rows   []Row
}

var complaintsColumns = []string{
	"index",
	"obf_flight_no",
	"obf_departure",
	"obf_opnl_prod_cd",
	"obf_ot_form_typ",
	"obf_act_ac_rgsn_cd",
	"obf_act_dep_terminal_cd",
	"obf_section",
	"obf_sub_section",
	"obf_quest_cd",
	"obf_quest_txt",
	"obf_quest_txt_nlts",
	"obf_month",
	"obf_date",
	"obf_brand",
	"obf_rating",
	"obf_answer",
	"obf_personal_intro",
	"obf_pax_count",
	"obf_pax_no_offer_meal",
	"obf_pax_declined_meal",
	"obf_monetary_value",
	"obf_description",
	"obf_action_taken",
	"obf_further_action",
	"obf_hotel_name",
	"obf_room_number",
	"obf_specify_other",
	"obf_seal_no_1",
	"obf_seal_no_2",
	"obf_bar_no",
	"obf_trolley_no",
	"obf_tech_trolley_missing_items",
	"obf_catering_item",
	"obf_actual_loaded",
	"obf_suggested_loaded",
	"obf_pax_loaded",
	"obf_insufficient_loaded",
	"obf_excess_loaded",
	"obf_seat_number",
	"obf_station",
	"obf_chilled_stowage",
	"obf_stowage_affected",
	"obf_stowage_affected_first",
	"obf_stowage_affected_cw",
	"obf_stowage_affected_ce",
	"obf_stowage_affected_wt_plus",
	"obf_stowage_affected_wt",
	"obf_stowage_affected_et",
	"obf_stowage_affected_dom",
	"obf_stowage_affected_all",
	"obf_num_of_meals",
	"obf_ife_system",
	"obf_customer_name",
	"obf_reason",
	"obf_iccm",
	"obf_feedback_sent_date",
	"obf_faqs",
	"obf_faq_desc",
	"obf_comments",
	"obf_service",
	"obf_pot_wat_lvl",
	"obf_pot_wat_ltrs",
	"obf_source",
	"obf_aircraft",
	"obf_aircraft_section",
	"obf_author",
}

// ComplaintsMappings is the identity mapping of the travel complaints table:
// every column is kept under its own name and pinned to string.
func ComplaintsMappings() []Mapping {
	mappings := make([]Mapping, len(complaintsColumns))
	for i, c := range complaintsColumns {
		mappings[i] = Mapping{SourceName: c, SourceType: TypeString, TargetName: c, TargetType: TypeString}
	}
	return mappings
}

// Schema returns the output fields of mappings in declaration order.
func Schema(mappings []Mapping) ([]Field, error) {
	seen := make(map[string]struct{}, len(mappings))
	fields := make([]Field, 0, len(mappings))
	for _, m := range mappings {
		if m.SourceName == "" || m.TargetName == "" {
			return nil, fmt.Errorf("mapping needs source and target names: %+v", m)
		}
		if m.TargetType != TypeString {
			return nil, fmt.Errorf("%w: %s for column %s", ErrUnsupportedType, m.TargetType, m.TargetName)
		}
		if _, ok := seen[m.TargetName]; ok {
			return nil, fmt.Errorf("duplicate target column %s", m.TargetName)
		}
		seen[m.TargetName] = struct{}{}
		fields = append(fields, Field{Name: m.TargetName, Type: m.TargetType})
	}
	return fields, nil
}

// ApplyMapping projects records onto the mapped columns. Fields without a
// mapping are dropped; mapped fields missing from a record are null.
func ApplyMapping(records []Record, mappings []Mapping) (*Frame, error) {
	schema, err := Schema(mappings)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		row := make(Row, len(mappings))
		for j, m := range mappings {
			v, ok := rec[m.SourceName]
			if !ok || v == nil {
				continue
			}
			s, err := castString(v)
			if err != nil {
				return nil, fmt.Errorf("record %d column %s: %w", i, m.SourceName, err)
			}
			row[j] = &s
		}
		rows[i] = row
	}

	return &Frame{Schema: schema, Rows: rows}, nil
}

func castString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("failed to cast value to string: %w", err)
		}
		return string(b), nil
	}
}
