package devin

import (
	"encoding/json"
	"fmt"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// BuildScopePrompt asks the agent to produce a remediation plan for an
// issue. archiveContext is optional historical precedent and may be empty.
func BuildScopePrompt(repo *types.Repo, issue *types.Issue, archiveContext string) string {
	contextSection := ""
	if archiveContext != "" {
		contextSection = "\n\nHistorical context:\n" + archiveContext
	}

	return fmt.Sprintf(`You are scoping a fix for a GitHub issue. Investigate the repository and produce a remediation plan. Do NOT make any code changes.

Repository: %s
Issue #%d: %s

Issue description:
%s%s

Respond with raw JSON only, no prose, no code fences:
{
  "summary": "one-paragraph description of the fix",
  "files_to_change": ["path/one", "path/two"],
  "action_plan": ["ordered step 1", "ordered step 2"],
  "confidence": 0-100
}`, repo.URL, issue.Number, issue.Title, issue.Body, contextSection)
}

// BuildRescopePrompt sends the prior plan plus the user's free-text
// refinement instructions and asks for a replacement plan.
func BuildRescopePrompt(repo *types.Repo, issue *types.Issue, prior *types.Plan, notes string) string {
	return fmt.Sprintf(`You previously scoped a fix for a GitHub issue. Refine the plan according to the feedback below. Do NOT make any code changes.

Repository: %s
Issue #%d: %s

Previous plan:
%s

Refinement instructions from the user:
%s

Respond with raw JSON only, no prose, no code fences, using the same shape as the previous plan:
{
  "summary": "...",
  "files_to_change": [...],
  "action_plan": [...],
  "confidence": 0-100
}`, repo.URL, issue.Number, issue.Title, planJSON(prior), notes)
}

// BuildExecutePrompt asks the agent to implement the approved plan and open
// a pull request. The plan is embedded verbatim so the agent cannot
// silently deviate from what was approved. When ciFailureContext is
// non-empty this is an auto-heal pass: the agent must fix the named CI
// failures on the existing branch rather than re-derive from the plan.
func BuildExecutePrompt(repo *types.Repo, issue *types.Issue, plan *types.Plan, ciFailureContext string) string {
	if ciFailureContext != "" {
		return fmt.Sprintf(`A pull request you opened for the issue below is failing CI. Fix the named failures and push to the same branch. Do not re-derive the work from the original plan; address the failures directly.

Repository: %s
Issue #%d: %s
Pull request: %s

%s

Respond with raw JSON only, no prose, no code fences:
{
  "pr_url": "the pull request URL",
  "summary": "what was changed to fix CI"
}`, repo.URL, issue.Number, issue.Title, issue.PRURL, ciFailureContext)
	}

	return fmt.Sprintf(`Implement the approved plan below for a GitHub issue, then open a pull request against the %s branch.

Repository: %s
Issue #%d: %s

Approved plan (follow it exactly):
%s

Respond with raw JSON only, no prose, no code fences:
{
  "pr_url": "the pull request URL",
  "summary": "what was implemented"
}`, repo.DefaultBranch, repo.URL, issue.Number, issue.Title, planJSON(plan))
}

// BuildTribunalPrompt asks for an advisory review that grades a plan
// without changing anything.
func BuildTribunalPrompt(repo *types.Repo, issue *types.Issue, plan *types.Plan) string {
	return fmt.Sprintf(`You are reviewing a remediation plan for a GitHub issue. Grade it; do NOT make any code changes and do NOT alter the plan.

Repository: %s
Issue #%d: %s

Plan under review:
%s

Respond with raw JSON only, no prose, no code fences:
{
  "safety": 0-10,
  "efficiency": 0-10,
  "completeness": 0-10,
  "verdict": "approve" or "revise",
  "rationale": "short justification"
}`, repo.URL, issue.Number, issue.Title, planJSON(plan))
}

func planJSON(plan *types.Plan) string {
	if plan == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
