// Package trace implements the on-disk trace format (spec §6): one run
// directory with a subdirectory per runtime, each containing zero-padded
// sequential action directories with a before.json snapshot and a
// decl.json/call.json post-call record, plus the persisted random pool
// under data/. [SUPPLEMENT] A Badger-backed index over the same actions
// lets an interrupted run resume (SPEC_FULL §2.13, §4.6).
package trace

import "github.com/yagehu/wasit-sub000/internal/schema"

// EnvironmentSnapshot is the before.json content: a flattened view of every
// live resource's type, value, and attributes at the moment just before a
// call's arguments were solved for.
type EnvironmentSnapshot struct {
	Resources []ResourceSnapshot `json:"resources"`
}

// ResourceSnapshot is one resource instance as it appears in a
// before.json.
type ResourceSnapshot struct {
	ID         int                       `json:"id"`
	TypeName   string                    `json:"type_name"`
	Value      *schema.Value             `json:"value"`
	Attributes map[string]*schema.Value  `json:"attributes"`
}

// CallRecord is a call.json: the function invoked, its arguments before and
// after dispatch, its results, and the errno it returned (spec §3's
// "(function, params_in, params_out, results, errno)" tuple).
type CallRecord struct {
	Function    string                    `json:"function"`
	ParamsIn    map[string]*schema.Value  `json:"params_in"`
	ParamsOut   map[string]*schema.Value  `json:"params_out"`
	Results     map[string]*schema.Value  `json:"results"`
	Errno       *int32                    `json:"errno,omitempty"`
}

// DeclRecord is a decl.json: a bootstrap-time declaration query and its
// answer, recorded so replay can reproduce bootstrap without re-querying a
// live guest.
type DeclRecord struct {
	Interface string            `json:"interface"`
	Preopens  []PreopenSnapshot `json:"preopens"`
}

// PreopenSnapshot is one discovered preopened directory.
type PreopenSnapshot struct {
	ResourceID int    `json:"resource_id"`
	DirName    string `json:"dir_name"`
}

// Action is one recorded action directory's full content, used by both the
// writer and the resume reader.
type Action struct {
	Index  int
	Before EnvironmentSnapshot
	Decl   *DeclRecord
	Call   *CallRecord
}
