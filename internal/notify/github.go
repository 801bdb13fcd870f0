package notify

import (
	"context"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/stitchcd/stitch/internal/config"
	"github.com/stitchcd/stitch/internal/reporting"
)

// maxCommentBody stays under GitHub's 65536-character comment limit with
// room for the truncation notice.
const maxCommentBody = 65000

const truncationNotice = "\n\n*Report truncated. See the workflow artifacts for the full version.*"

// PRCommenter upserts the rendered markdown report as a pull-request
// comment. Comments are tagged with reporting.CommentMarker, so a re-run
// edits the previous comment instead of stacking a new one.
type PRCommenter struct {
	client *github.Client
	owner  string
	repo   string
	number int
	logger *zap.Logger
}

// NewPRCommenter builds the commenter from the github section. A missing
// token, repository, or PR number yields a disabled commenter whose Upsert is
// a no-op; a repository that is not owner/name disables it with a warning.
func NewPRCommenter(cfg config.GitHubConfig, logger *zap.Logger) *PRCommenter {
	log := logger.Named("pr_comment")
	if cfg.Token == "" || cfg.Repository == "" || cfg.PRNumber <= 0 {
		return &PRCommenter{logger: log}
	}

	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" {
		log.Warn("github.repository must be owner/name, PR comment disabled",
			zap.String("repository", cfg.Repository))
		return &PRCommenter{logger: log}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	return &PRCommenter{
		client: github.NewClient(oauth2.NewClient(context.Background(), ts)),
		owner:  owner,
		repo:   repo,
		number: cfg.PRNumber,
		logger: log,
	}
}

// Upsert posts body as the run's PR comment, editing the marker-tagged
// comment from a previous run when one exists. The body is expected to carry
// reporting.CommentMarker on its first line. Like the webhook, delivery is
// best effort and never fails the run.
func (c *PRCommenter) Upsert(ctx context.Context, body string) {
	if c.client == nil {
		c.logger.Debug("GitHub PR comment not configured, skipping")
		return
	}

	if len(body) > maxCommentBody {
		body = body[:maxCommentBody] + truncationNotice
	}

	comment := &github.IssueComment{Body: github.String(body)}

	if existing := c.findReportComment(ctx); existing != nil {
		_, _, err := c.client.Issues.EditComment(ctx, c.owner, c.repo, existing.GetID(), comment)
		if err != nil {
			c.logger.Warn("Failed to update PR comment, continuing",
				zap.Int64("comment_id", existing.GetID()),
				zap.Error(err))
			return
		}
		c.logger.Info("Updated existing report comment",
			zap.Int("pr", c.number),
			zap.Int64("comment_id", existing.GetID()))
		return
	}

	_, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, c.number, comment)
	if err != nil {
		c.logger.Warn("Failed to post PR comment, continuing",
			zap.Int("pr", c.number),
			zap.Error(err))
		return
	}
	c.logger.Info("Posted report comment", zap.Int("pr", c.number))
}

// findReportComment scans the PR's comments for the marker left by a
// previous run. A listing failure is only a lost dedup opportunity, so it
// warns and reports no match.
func (c *PRCommenter) findReportComment(ctx context.Context) *github.IssueComment {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, c.owner, c.repo, c.number, opts)
		if err != nil {
			c.logger.Warn("Failed to list existing PR comments, posting a new one",
				zap.Int("pr", c.number),
				zap.Error(err))
			return nil
		}
		for _, comment := range comments {
			if strings.Contains(comment.GetBody(), reporting.CommentMarker) {
				return comment
			}
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}
