package schedule

// Rule states
const (
	RuleEnabled  = "ENABLED"
	RuleDisabled = "DISABLED"
)

// Target is what a rule invokes
type Target struct {
	ID      string `json:"Id"`
	Arn     string `json:"Arn"`
	RoleArn string `json:"RoleArn,omitempty"`
}

// Rule is the deployable form of a schedule
type Rule struct {
	Name               string   `json:"Name"`
	Description        string   `json:"Description,omitempty"`
	ScheduleExpression string   `json:"ScheduleExpression"`
	State              string   `json:"State"`
	Targets            []Target `json:"Targets"`
}

// NewRule builds the rule that starts the state machine at targetArn
func NewRule(name string, expression Expression, enabled bool, targetArn, roleArn string) Rule {
	state := RuleDisabled
	if enabled {
		state = RuleEnabled
	}

	return Rule{
		Name:               name,
		Description:        "Starts the json-to-parquet workflow",
		ScheduleExpression: expression.Source,
		State:              state,
		Targets: []Target{{
			ID:      "workflow",
			Arn:     targetArn,
			RoleArn: roleArn,
		}},
	}
}
