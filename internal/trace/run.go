package trace

import (
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/yagehu/wasit-sub000/internal/werr"
)

// RunMeta is the run.json written at the root of a run directory: enough
// metadata to identify a run, reproduce its pool, and detect a schema
// mismatch before attempting a resume or replay against the wrong inputs.
type RunMeta struct {
	ID           string        `json:"id"`
	Seed         int64         `json:"seed"`
	PoolSize     int           `json:"pool_size"`
	SchemaDigest digest.Digest `json:"schema_digest"`
	PoolDigest   digest.Digest `json:"pool_digest"`
	StartedAt    time.Time     `json:"started_at"`
	Runtimes     []string      `json:"runtimes"`
}

// DigestOf content-addresses a blob (the schema source, the random pool)
// the same way the run metadata records it.
func DigestOf(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

// WriteRunMeta persists meta as runDir/run.json.
func WriteRunMeta(runDir string, meta *RunMeta) error {
	return writeJSON(filepath.Join(runDir, "run.json"), meta)
}

// ReadRunMeta loads a run directory's run.json.
func ReadRunMeta(runDir string) (*RunMeta, error) {
	var meta RunMeta
	if err := readJSON(filepath.Join(runDir, "run.json"), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// VerifyRunInputs checks that the schema and pool a resume/replay is about
// to use match what the original run recorded, so a stale trace directory
// fails loudly instead of silently diverging (spec §8.6's replay
// determinism is conditioned on identical inputs).
func VerifyRunInputs(meta *RunMeta, schemaSrc, poolBytes []byte) error {
	if got := DigestOf(schemaSrc); got != meta.SchemaDigest {
		return werr.New(werr.TraceStore, "schema digest %s does not match recorded %s", got, meta.SchemaDigest)
	}
	if got := DigestOf(poolBytes); got != meta.PoolDigest {
		return werr.New(werr.TraceStore, "pool digest %s does not match recorded %s", got, meta.PoolDigest)
	}
	return nil
}
