// Package job declares the transformation job and manages its runs.
package job

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/glue-pipeline/internal/config"
	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/internal/naming"
)

// Argument names passed to the transformation script
const (
	ArgJobName       = "--JOB_NAME"
	ArgEnableMetrics = "--enable-metrics"
	ArgEnableSparkUI = "--enable-spark-ui"
	ArgDatabase      = "--dbname"
	ArgTable         = "--table"
	ArgOutputPath    = "--outputpath"
)

// Definition describes the job resource.
type Definition struct {
	Name              string           `json:"Name"`
	ARN               string           `json:"Arn"`
	Role              string           `json:"Role"`
	Script            string           `json:"ScriptLocation"`
	GlueVersion       string           `json:"GlueVersion"`
	WorkerType        string           `json:"WorkerType"`
	NumberOfWorkers   int              `json:"NumberOfWorkers"`
	MaxConcurrentRuns int              `json:"MaxConcurrentRuns"`
	Timeout           time.Duration    `json:"-"`
	DefaultArguments  domain.Arguments `json:"DefaultArguments"`
}

// NewDefinition builds the job from configuration and the resolved names.
func NewDefinition(cfg *config.Config, names naming.Names) Definition {
	region, account := cfg.Deployment.Region, cfg.Deployment.Account

	return Definition{
		Name:              names.Job,
		ARN:               fmt.Sprintf("arn:aws:glue:%s:%s:job/%s", region, account, names.Job),
		Role:              fmt.Sprintf("arn:aws:iam::%s:role/%s", account, names.JobRole),
		Script:            cfg.Job.Script,
		GlueVersion:       cfg.Job.GlueVersion,
		WorkerType:        cfg.Job.WorkerType,
		NumberOfWorkers:   cfg.Job.NumberOfWorkers,
		MaxConcurrentRuns: cfg.Job.MaxConcurrentRuns,
		Timeout:           cfg.Job.Timeout,
		DefaultArguments: domain.Arguments{
			ArgEnableMetrics: strconv.FormatBool(cfg.Job.EnableMetrics),
			ArgEnableSparkUI: strconv.FormatBool(cfg.Job.EnableSparkUI),
			ArgDatabase:      cfg.Job.Database,
			ArgTable:         cfg.Job.Table,
			ArgOutputPath:    cfg.Job.OutputPath,
		},
	}
}

// Arguments merges overrides onto the default arguments and sets the job
// name argument.
func (d Definition) Arguments(overrides domain.Arguments) domain.Arguments {
	args := make(domain.Arguments, len(d.DefaultArguments)+len(overrides)+1)
	for k, v := range d.DefaultArguments {
		args[k] = v
	}
	for k, v := range overrides {
		args[k] = v
	}
	args[ArgJobName] = d.Name
	return args
}

// TimeoutMinutes is the job timeout in the unit the resource document uses.
func (d Definition) TimeoutMinutes() int {
	return int(d.Timeout / time.Minute)
}
