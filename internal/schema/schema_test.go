package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/autohub/internal/workflow"
)

func mustParam(t require.TestingT, name string, pt workflow.ParamType, opts ...workflow.ParameterOption) *workflow.Parameter {
	p, err := workflow.NewParameter(name, pt, opts...)
	require.NoError(t, err)
	return p
}

func organizeParams(t *testing.T) []*workflow.Parameter {
	return []*workflow.Parameter{
		mustParam(t, "source_folder", workflow.ParamFilePath, workflow.Required(true), workflow.WithDescription("Folder to organize")),
		mustParam(t, "mode", workflow.ParamChoice, workflow.WithChoices("by_extension", "by_date"), workflow.WithDefault("by_extension")),
		mustParam(t, "dry_run", workflow.ParamBoolean, workflow.WithDefault(true)),
		mustParam(t, "note", workflow.ParamMultiline),
	}
}

func fieldNames(err error) []string {
	verr, ok := err.(*workflow.ValidationError)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Param)
	}
	return names
}

func TestResolve_AppliesDefaults(t *testing.T) {
	got, err := Resolve(organizeParams(t), map[string]any{"source_folder": "/tmp/in"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"source_folder": "/tmp/in",
		"mode":          "by_extension",
		"dry_run":       true,
	}, got)
}

func TestResolve_NilValueUsesDefault(t *testing.T) {
	got, err := Resolve(organizeParams(t), map[string]any{"source_folder": "/x", "dry_run": nil})
	require.NoError(t, err)
	assert.Equal(t, true, got["dry_run"])
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]any
		fields []string
	}{
		{"missing required", map[string]any{}, []string{"source_folder"}},
		{"empty string counts as missing", map[string]any{"source_folder": ""}, []string{"source_folder"}},
		{"wrong type for boolean", map[string]any{"source_folder": "/x", "dry_run": "true"}, []string{"dry_run"}},
		{"wrong type for string", map[string]any{"source_folder": 12.0}, []string{"source_folder"}},
		{"choice not member", map[string]any{"source_folder": "/x", "mode": "by_size"}, []string{"mode"}},
		{"unknown argument", map[string]any{"source_folder": "/x", "zzz": 1, "aaa": 2}, []string{"aaa", "zzz"}},
		{
			"all collected",
			map[string]any{"mode": "nope", "dry_run": 1, "extra": "x"},
			[]string{"source_folder", "mode", "dry_run", "extra"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(organizeParams(t), tt.args)
			require.Error(t, err)

			var verr *workflow.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, fieldNames(err))
		})
	}
}

func TestResolve_EchoScenario(t *testing.T) {
	params := []*workflow.Parameter{mustParam(t, "msg", workflow.ParamString, workflow.Required(true))}

	got, err := Resolve(params, map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got["msg"])

	_, err = Resolve(params, map[string]any{})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "msg", verr.Fields[0].Param)
}

func TestResolve_ChoiceMembership(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		choices := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 6, rapid.ID[string]).Draw(t, "choices")
		p := mustParam(t, "pick", workflow.ParamChoice, workflow.WithChoices(choices...), workflow.Required(true))
		params := []*workflow.Parameter{p}

		member := rapid.SampledFrom(choices).Draw(t, "member")
		got, err := Resolve(params, map[string]any{"pick": member})
		require.NoError(t, err)
		require.Equal(t, member, got["pick"])

		other := rapid.StringMatching(`[a-z0-9]{1,8}`).Filter(func(s string) bool {
			return !p.Allows(s)
		}).Draw(t, "nonMember")
		_, err = Resolve(params, map[string]any{"pick": other})
		var verr *workflow.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "pick", verr.Fields[0].Param)
	})
}

func TestCoerce(t *testing.T) {
	params := organizeParams(t)

	got, err := Coerce(params, map[string]string{
		"source_folder": "/tmp",
		"dry_run":       "no",
		"extra":         "kept",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source_folder": "/tmp", "dry_run": false, "extra": "kept"}, got)

	got, err = Coerce(params, map[string]string{"dry_run": "TRUE"})
	require.NoError(t, err)
	assert.Equal(t, true, got["dry_run"])

	_, err = Coerce(params, map[string]string{"dry_run": "maybe"})
	assert.Equal(t, []string{"dry_run"}, fieldNames(err))
}

func TestFormFields(t *testing.T) {
	fields := FormFields(organizeParams(t))
	require.Len(t, fields, 4)

	assert.Equal(t, FormField{
		Name: "source_folder", Label: "Source Folder", Widget: WidgetFile,
		Help: "Folder to organize", Required: true,
	}, fields[0])
	assert.Equal(t, WidgetSelect, fields[1].Widget)
	assert.Equal(t, []string{"by_extension", "by_date"}, fields[1].Choices)
	assert.Equal(t, "by_extension", fields[1].Default)
	assert.Equal(t, WidgetCheckbox, fields[2].Widget)
	assert.Equal(t, "true", fields[2].Default)
	assert.Equal(t, WidgetTextarea, fields[3].Widget)
}
