package cmd

import (
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/claimsurvival/internal/survival"
	"github.com/dbsmedya/claimsurvival/internal/types"
)

// setAnalyzeFlags sets the analyze flag variables and restores them after the test.
func setAnalyzeFlags(t *testing.T, scope, output, user, chart string) {
	t.Helper()
	origScope, origOutput, origSession := analyzeScope, analyzeOutput, analyzeSession
	origLock, origVerify := analyzeLock, analyzeVerify
	t.Cleanup(func() {
		analyzeScope, analyzeOutput, analyzeSession = origScope, origOutput, origSession
		analyzeLock, analyzeVerify = origLock, origVerify
	})

	analyzeScope = scope
	analyzeOutput = output
	analyzeSession = sessionFlags{user: user, chart: chart}
}

func TestAnalyzeCommandStructure(t *testing.T) {
	assert.NotNil(t, analyzeCmd)
	assert.Equal(t, "analyze", analyzeCmd.Use)
	assert.NotEmpty(t, analyzeCmd.Short)
	assert.Contains(t, analyzeCmd.Long, "Example:")
	assert.Contains(t, analyzeCmd.Long, "claimsurvival analyze")
	assert.NotNil(t, analyzeCmd.RunE)
}

func TestAnalyzeCommandFlags(t *testing.T) {
	flags := analyzeCmd.Flags()

	scopeFlag := flags.Lookup("scope")
	require.NotNil(t, scopeFlag)
	assert.Equal(t, "s", scopeFlag.Shorthand)
	assert.Equal(t, "", scopeFlag.DefValue)

	outputFlag := flags.Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "text", outputFlag.DefValue)

	for _, name := range []string{"lock", "verify"} {
		f := flags.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "false", f.DefValue)
	}

	for _, name := range []string{"user", "chart"} {
		f := flags.Lookup(name)
		require.NotNil(t, f, name)
		assert.NotNil(t, f.Annotations["cobra_annotation_bash_completion_one_required_flag"], name)
	}
}

func TestRunAnalyzeText(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	writeTestConfig(t, mr)
	setAnalyzeFlags(t, "scope:42", outputText, "7", "3")
	buf := captureOutput(t)

	require.NoError(t, runAnalyze(analyzeCmd, nil))

	assert.Contains(t, buf.String(), "Survival Analysis: scope:42")
	assert.Contains(t, buf.String(), "2_unaffected  1")
	assert.True(t, mr.Exists("user7:chart3:index"))
}

func TestRunAnalyzeJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	writeTestConfig(t, mr)
	setAnalyzeFlags(t, "scope:42", outputJSON, "7", "3")
	analyzeVerify = true
	buf := captureOutput(t)

	require.NoError(t, runAnalyze(analyzeCmd, nil))

	var report survival.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "scope:42", report.Title)
	assert.Equal(t, int64(1), report.CountTotal)
	assert.Equal(t, int64(1), report.CountUnique)
	assert.Equal(t, []types.CategoryCount{
		{Category: "6_unbinned", Count: 0},
		{Category: "5_killed", Count: 0},
		{Category: "4_impaired", Count: 0},
		{Category: "3_weakened", Count: 0},
		{Category: "2_unaffected", Count: 1},
	}, report.SurvivalUnique)
}

func TestRunAnalyzeDefaultsToAllScope(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	writeTestConfig(t, mr)
	setAnalyzeFlags(t, "", outputJSON, "7", "3")
	buf := captureOutput(t)

	require.NoError(t, runAnalyze(analyzeCmd, nil))

	var report survival.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "all", report.Title)
	assert.Equal(t, int64(1), report.CountUnique)
}

func TestRunAnalyzeLockedSession(t *testing.T) {
	mr := miniredis.RunT(t)
	seedScenario(t, mr)
	writeTestConfig(t, mr)
	setAnalyzeFlags(t, "scope:42", outputText, "7", "3")
	analyzeLock = true
	require.NoError(t, mr.Set("user7:chart3:lock", "another-run"))
	captureOutput(t)

	err := runAnalyze(analyzeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already being analyzed")
}

func TestRunAnalyzeInvalidOutput(t *testing.T) {
	setAnalyzeFlags(t, "", "yaml", "7", "3")

	err := runAnalyze(analyzeCmd, nil)
	assert.Error(t, err)
}

func TestRunAnalyzeInvalidSession(t *testing.T) {
	setAnalyzeFlags(t, "", outputText, "7 8", "3")

	err := runAnalyze(analyzeCmd, nil)
	assert.Error(t, err)
}

func TestRunAnalyzeStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	writeTestConfig(t, mr)
	setAnalyzeFlags(t, "scope:42", outputText, "7", "3")
	mr.SetError("ERR store down")
	captureOutput(t)

	err := runAnalyze(analyzeCmd, nil)
	assert.Error(t, err)
}
