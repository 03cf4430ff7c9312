package safety_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"imagededup/config"
	"imagededup/safety"
	"imagededup/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLog collects audit entries in memory.
type memLog struct {
	mu      sync.Mutex
	entries []types.OperationLogEntry
}

func (l *memLog) Append(entry types.OperationLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memLog) last() (types.OperationLogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return types.OperationLogEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

func newTestEngine(t *testing.T) (*safety.Engine, *memLog) {
	t.Helper()
	engine, log, _ := newTestEngineAt(t)
	return engine, log
}

func newTestEngineAt(t *testing.T) (*safety.Engine, *memLog, string) {
	t.Helper()
	root := t.TempDir()
	log := &memLog{}
	engine, err := safety.NewEngine(config.Safety{BackupRoot: root, Workers: 2}, log)
	require.NoError(t, err)
	return engine, log, root
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func record(path string, recommended bool) *types.ImageRecord {
	return &types.ImageRecord{Path: path, Recommended: recommended}
}

func TestVerifyExist(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	present := writeFile(t, dir, "present.jpg", "data")
	missing := filepath.Join(dir, "missing.jpg")

	check := engine.VerifyExist([]string{present, missing})

	assert.False(t, check.Verified)
	assert.Equal(t, 2, check.Checked)
	assert.Equal(t, []string{missing}, check.Missing)

	check = engine.VerifyExist([]string{present})
	assert.True(t, check.Verified)
	assert.Empty(t, check.Missing)
}

func TestCheckGroupRequiresRecommendation(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{
		record(writeFile(t, dir, "a.jpg", "a"), false),
		record(writeFile(t, dir, "b.jpg", "b"), false),
	}}

	err := engine.CheckGroup(group)

	var violation *types.SafetyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "recommended-exists", violation.Check)
	assert.False(t, group.SafetyVerified)
}

func TestCheckGroupRejectsMissingFile(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{
		record(writeFile(t, dir, "a.jpg", "a"), true),
		record(filepath.Join(dir, "gone.jpg"), false),
	}}

	err := engine.CheckGroup(group)

	var violation *types.SafetyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "files-exist", violation.Check)
}

func TestCheckGroupPassesAndMarksVerified(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	group := &types.DuplicateGroup{Images: []*types.ImageRecord{
		record(writeFile(t, dir, "keep.jpg", "keep"), true),
		record(writeFile(t, dir, "dupe.jpg", "dupe"), false),
	}}

	require.NoError(t, engine.CheckGroup(group))
	assert.True(t, group.SafetyVerified)
}

func TestRunSafetyChecksNamesFailingGroup(t *testing.T) {
	engine, _ := newTestEngine(t)
	dir := t.TempDir()
	good := &types.DuplicateGroup{Images: []*types.ImageRecord{
		record(writeFile(t, dir, "a.jpg", "a"), true),
		record(writeFile(t, dir, "b.jpg", "b"), false),
	}}
	bad := &types.DuplicateGroup{Images: []*types.ImageRecord{
		record(writeFile(t, dir, "c.jpg", "c"), false),
	}}

	err := engine.RunSafetyChecks([]*types.DuplicateGroup{good, bad})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "group 1")
}

func TestEmergencyStopIsSticky(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.False(t, engine.Stopped())

	engine.EmergencyStop()

	assert.True(t, engine.Stopped())
	assert.Equal(t, safety.StateHalted, engine.State())

	// A second stop is a no-op, not an error.
	engine.EmergencyStop()
	assert.True(t, engine.Stopped())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", safety.StateIdle.String())
	assert.Equal(t, "ready-to-delete", safety.StateReadyToDelete.String())
	assert.Equal(t, "halted", safety.StateHalted.String())
}
