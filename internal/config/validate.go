package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/robfig/cron/v3"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

// schema compiles the embedded CUE schema once.
func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks c against the schema, then checks the values the schema
// cannot express: the timezone must load and the refresh spec must parse.
func (c *Config) Validate() error {
	ctx, def, err := schema()
	if err != nil {
		return err
	}

	var problems []string
	schemaMu.Lock()
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, describe(e))
		}
	}
	schemaMu.Unlock()
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Materialize.Refresh != "" {
		if _, err := cron.ParseStandard(c.Materialize.Refresh); err != nil {
			problems = append(problems, fmt.Sprintf("materialize.refresh: %v", err))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// describe renders a CUE error as "path: message".
func describe(e cueerrors.Error) string {
	format, args := e.Msg()
	msg := fmt.Sprintf(format, args...)
	path := strings.Join(e.Path(), ".")
	if path == "" {
		return msg
	}
	return path + ": " + msg
}
