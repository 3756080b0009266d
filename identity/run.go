/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

// Run statuses recorded in the run history.
const (
	RunSucceeded = "SUCCEEDED"
	RunPartial   = "PARTIAL"
	RunHalted    = "HALTED"
	RunFailed    = "FAILED"
)

// RunRecord is the persisted outcome of one reconciliation run.
// StartedAt is RFC3339 so that it sorts lexically in the history index.
type RunRecord struct {
	RunToken   string `dynamodbav:"run_token" json:"runToken"`
	Trigger    string `dynamodbav:"trigger" json:"trigger"`
	Status     string `dynamodbav:"status" json:"status"`
	StartedAt  string `dynamodbav:"started_at" json:"startedAt"`
	FinishedAt string `dynamodbav:"finished_at" json:"finishedAt"`
	Succeeded  int    `dynamodbav:"succeeded" json:"succeeded"`
	Failed     int    `dynamodbav:"failed" json:"failed"`
	Skipped    int    `dynamodbav:"skipped" json:"skipped"`
	Halted     bool   `dynamodbav:"halted" json:"halted"`
	Error      string `dynamodbav:"error,omitempty" json:"error,omitempty"`
	Version    int64  `dynamodbav:"version" json:"version"`
}

func (r RunRecord) StoreKey() string { return r.RunToken }
func (r RunRecord) StoreVersion() int64 { return r.Version }
func (r RunRecord) EntityType() string { return EntityRun }
func (r RunRecord) WithVersion(v int64) RunRecord {
	r.Version = v
	return r
}
