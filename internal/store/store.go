// Package store persists base snapshots and supplies them back to the
// comparison engine, either from a record store or by rebuilding the base
// ref on demand.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/schaermu/bundlewatchd/internal/snapshot"
)

// Store persists snapshots under a branch/key identifier. Records are
// opaque serialized snapshots, overwritten on each save (last write wins).
type Store interface {
	// Load returns the snapshot recorded under key, or nil when no usable
	// record exists. A missing or malformed record is a normal first-run
	// condition, not an error.
	Load(ctx context.Context, key string) (*snapshot.Snapshot, error)
	// Save records the snapshot under key, replacing any prior record.
	Save(ctx context.Context, key string, snap *snapshot.Snapshot) error
}

// issueAPI is the slice of the GitHub Issues API the store needs.
// *github.IssuesService satisfies it; tests substitute a fake.
type issueAPI interface {
	ListByRepo(ctx context.Context, owner, repo string, opts *github.IssueListByRepoOptions) ([]*github.Issue, *github.Response, error)
	Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
}

// IssueStore keeps snapshot records in GitHub issues: one labeled issue
// per key, titled by the key, body a fenced JSON snapshot.
type IssueStore struct {
	api    issueAPI
	owner  string
	repo   string
	label  string
	logger *slog.Logger
}

// NewIssueStore creates a store backed by labeled issues in owner/repo.
func NewIssueStore(client *github.Client, owner, repo, label string, logger *slog.Logger) *IssueStore {
	return &IssueStore{
		api:    client.Issues,
		owner:  owner,
		repo:   repo,
		label:  label,
		logger: logger,
	}
}

// Load retrieves the snapshot recorded for key. Absent or unreadable
// records yield nil without an error.
func (s *IssueStore) Load(ctx context.Context, key string) (*snapshot.Snapshot, error) {
	issue, err := s.findRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		s.logger.Info("no snapshot record found", "key", key)
		return nil, nil
	}

	snap, err := snapshot.Unmarshal([]byte(extractJSON(issue.GetBody())))
	if err != nil {
		// A garbled record must not fail the run; it just means no base.
		s.logger.Warn("ignoring malformed snapshot record",
			"key", key, "issue", issue.GetNumber(), "error", err)
		return nil, nil
	}

	s.logger.Info("loaded snapshot record",
		"key", key, "issue", issue.GetNumber(), "total_size", snap.TotalSize)
	return snap, nil
}

// Save records the snapshot under key, editing the existing record issue
// or creating a new labeled one.
func (s *IssueStore) Save(ctx context.Context, key string, snap *snapshot.Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	body := fmt.Sprintf("Bundle size snapshot for `%s`. Maintained automatically; do not edit.\n\n```json\n%s\n```\n", key, data)

	existing, err := s.findRecord(ctx, key)
	if err != nil {
		return err
	}

	if existing != nil {
		s.logger.Info("updating snapshot record", "key", key, "issue", existing.GetNumber())
		_, _, err = s.api.Edit(ctx, s.owner, s.repo, existing.GetNumber(), &github.IssueRequest{
			Body: github.Ptr(body),
		})
		if err != nil {
			return fmt.Errorf("failed to update snapshot record for %q: %w", key, err)
		}
		return nil
	}

	s.logger.Info("creating snapshot record", "key", key)
	_, _, err = s.api.Create(ctx, s.owner, s.repo, &github.IssueRequest{
		Title:  github.Ptr(key),
		Body:   github.Ptr(body),
		Labels: &[]string{s.label},
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot record for %q: %w", key, err)
	}
	return nil
}

// findRecord returns the labeled issue titled key, or nil.
func (s *IssueStore) findRecord(ctx context.Context, key string) (*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		Labels:      []string{s.label},
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		issues, resp, err := s.api.ListByRepo(ctx, s.owner, s.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshot records: %w", err)
		}
		for _, issue := range issues {
			if issue.GetTitle() == key {
				return issue, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// extractJSON pulls the snapshot JSON out of a record body, tolerating
// both fenced and bare payloads.
func extractJSON(body string) string {
	const fence = "```json"
	start := strings.Index(body, fence)
	if start < 0 {
		return body
	}
	rest := body[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
