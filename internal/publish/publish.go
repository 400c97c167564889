// Package publish posts rendered reports to the pull request, updating a
// previously posted comment in place instead of stacking duplicates.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
)

// Publisher publishes a rendered report body. The marker identifies a
// previously published report so repeated runs update instead of append.
type Publisher interface {
	Publish(ctx context.Context, body, marker string) error
}

// commentAPI is the slice of the GitHub Issues API the publisher needs.
// *github.IssuesService satisfies it; tests substitute a fake.
type commentAPI interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// CommentPublisher upserts a marker-keyed comment on one pull request.
type CommentPublisher struct {
	api    commentAPI
	owner  string
	repo   string
	number int
	logger *slog.Logger
}

// NewCommentPublisher creates a publisher for the given pull request.
func NewCommentPublisher(client *github.Client, owner, repo string, number int, logger *slog.Logger) *CommentPublisher {
	return &CommentPublisher{
		api:    client.Issues,
		owner:  owner,
		repo:   repo,
		number: number,
		logger: logger,
	}
}

// Publish creates the report comment, or edits the existing one whose body
// contains marker. Idempotent across repeated runs on the same PR.
func (p *CommentPublisher) Publish(ctx context.Context, body, marker string) error {
	existing, err := p.findMarked(ctx, marker)
	if err != nil {
		return err
	}

	comment := &github.IssueComment{Body: github.Ptr(body)}

	if existing != nil {
		p.logger.Info("updating existing report comment",
			"pr", p.number, "comment_id", existing.GetID())
		_, resp, err := p.api.EditComment(ctx, p.owner, p.repo, existing.GetID(), comment)
		if err != nil {
			return p.wrapAPIError("update comment", resp, err)
		}
		return nil
	}

	p.logger.Info("creating report comment", "pr", p.number)
	_, resp, err := p.api.CreateComment(ctx, p.owner, p.repo, p.number, comment)
	if err != nil {
		return p.wrapAPIError("create comment", resp, err)
	}
	return nil
}

// findMarked pages through the PR's comments for one containing marker.
func (p *CommentPublisher) findMarked(ctx context.Context, marker string) (*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		comments, resp, err := p.api.ListComments(ctx, p.owner, p.repo, p.number, opts)
		if err != nil {
			return nil, p.wrapAPIError("list comments", resp, err)
		}
		for _, c := range comments {
			if strings.Contains(c.GetBody(), marker) {
				return c, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// wrapAPIError annotates permission failures with the permission the token
// is missing, so a failed publish is diagnosable without re-running.
func (p *CommentPublisher) wrapAPIError(op string, resp *github.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("failed to %s on %s/%s#%d: %w (the token needs the pull-requests: write permission)",
			op, p.owner, p.repo, p.number, err)
	}
	return fmt.Errorf("failed to %s on %s/%s#%d: %w", op, p.owner, p.repo, p.number, err)
}
