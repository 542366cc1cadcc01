package db

import (
	"context"
	"encoding/json"
)

// BackfillCandidate is a registry skill with its most recent stored result.
// ResultID is nil when the skill was never scanned.
type BackfillCandidate struct {
	SkillID  string
	Owner    string
	Name     string
	Slug     string
	ResultID *string
	Details  json.RawMessage
}

// ListBackfillCandidates pages through registry skills by id, returning up
// to limit skills after afterID together with their latest result.
func (s *Store) ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]BackfillCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
SELECT sk.id::text, sk.owner, sk.name, sk.clawhub_slug, r.id::text, r.details
FROM skills sk
LEFT JOIN LATERAL (
	SELECT id, details
	FROM scan_results
	WHERE skill_id = sk.id
	ORDER BY created_at DESC
	LIMIT 1
) r ON true
WHERE sk.source='clawhub'
  AND sk.clawhub_slug IS NOT NULL
  AND sk.id::text > $1::text
ORDER BY sk.id::text
LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BackfillCandidate, 0, limit)
	for rows.Next() {
		var c BackfillCandidate
		var details []byte
		if err := rows.Scan(&c.SkillID, &c.Owner, &c.Name, &c.Slug, &c.ResultID, &details); err != nil {
			return nil, err
		}
		c.Details = details
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateResultDetails replaces the details document of one stored result.
func (s *Store) UpdateResultDetails(ctx context.Context, resultID string, details json.RawMessage) error {
	_, err := s.Pool.Exec(ctx, `UPDATE scan_results SET details=$2 WHERE id=$1`, resultID, []byte(details))
	return err
}
