package transform

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	OutcomePassed = "PASSED"
	OutcomeFailed = "FAILED"

	StrategyBestEffort = "BEST_EFFORT"
	ScopeAll           = "ALL"
)

// Rule compares one frame metric against a threshold.
type Rule struct {
	Metric    string // RowCount, ColumnCount
	Operator  string
	Threshold int64
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s %d", r.Metric, r.Operator, r.Threshold)
}

// Ruleset is a parsed "Rules = [ ... ]" document.
type Ruleset struct {
	Source string
	Rules  []Rule
}

// RuleResult is the outcome of one rule.
type RuleResult struct {
	Rule    string `json:"rule"`
	Outcome string `json:"outcome"`
	Actual  int64  `json:"actual"`
}

// QualityResult is what gets published for one evaluation.
type QualityResult struct {
	ResultID          string       `json:"result_id" db:"result_id"`
	JobName           string       `json:"job_name" db:"job_name"`
	RunID             string       `json:"run_id" db:"run_id"`
	EvaluationContext string       `json:"evaluation_context" db:"evaluation_context"`
	Ruleset           string       `json:"ruleset" db:"ruleset"`
	Score             float64      `json:"score" db:"score"`
	Passed            int          `json:"passed" db:"passed"`
	Failed            int          `json:"failed" db:"failed"`
	Rules             []RuleResult `json:"rules" db:"-"`
	EvaluatedAt       time.Time    `json:"evaluated_at" db:"evaluated_at"`
}

// ResultPublisher receives evaluation results.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *QualityResult) error
}

var (
	rulesetPattern = regexp.MustCompile(`(?s)^\s*Rules\s*=\s*\[(.*)\]\s*$`)
	rulePattern    = regexp.MustCompile(`^(RowCount|ColumnCount)\s*(>=|<=|>|<|=)\s*(\d+)$`)
)

// ParseRuleset parses a ruleset such as "Rules = [ RowCount > 0 ]".
func ParseRuleset(src string) (*Ruleset, error) {
	m := rulesetPattern.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("invalid ruleset: expected Rules = [ ... ]")
	}

	rs := &Ruleset{Source: strings.TrimSpace(src)}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rm := rulePattern.FindStringSubmatch(part)
		if rm == nil {
			return nil, fmt.Errorf("invalid rule %q", part)
		}
		threshold, err := strconv.ParseInt(rm[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rule %q: %w", part, err)
		}
		rs.Rules = append(rs.Rules, Rule{Metric: rm[1], Operator: rm[2], Threshold: threshold})
	}

	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("invalid ruleset: no rules")
	}

	return rs, nil
}

// Evaluate checks every rule against all rows of the frame.
func (rs *Ruleset) Evaluate(frame *Frame) []RuleResult {
	results := make([]RuleResult, len(rs.Rules))
	for i, r := range rs.Rules {
		var actual int64
		switch r.Metric {
		case "RowCount":
			actual = int64(len(frame.Rows))
		case "ColumnCount":
			actual = int64(len(frame.Schema))
		}

		outcome := OutcomeFailed
		if compare(actual, r.Operator, r.Threshold) {
			outcome = OutcomePassed
		}
		results[i] = RuleResult{Rule: r.String(), Outcome: outcome, Actual: actual}
	}
	return results
}

func compare(actual int64, op string, threshold int64) bool {
	switch op {
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case "=":
		return actual == threshold
	}
	return false
}

// Summarize folds rule results into a publishable result.
func Summarize(rs *Ruleset, results []RuleResult) *QualityResult {
	q := &QualityResult{Ruleset: rs.Source, Rules: results, EvaluatedAt: time.Now().UTC()}
	for _, r := range results {
		if r.Outcome == OutcomePassed {
			q.Passed++
		} else {
			q.Failed++
		}
	}
	if len(results) > 0 {
		q.Score = float64(q.Passed) / float64(len(results))
	}
	return q
}
