package services

import (
	"fmt"
	"strings"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
)

const nuggetAgentPrompt = `You are an AI journalist interviewing a participant who was voted by their peers as one of the most interesting people in the room ("%s", %d votes).
Your goal is to extract the concrete knowledge that made them stand out: experiences, methods, lessons learned and advice.
Ask one short, open question at a time. Follow up on specifics (numbers, examples, names of tools or practices). Never answer for the participant.
When the participant signals they are done, thank them and summarize the three strongest points in one sentence each.
Reply in the language the participant writes in.`

const lightbulbAgentPrompt = `You are an AI innovation coach talking with a participant ("%s") about the ideas the session sparked for them.
Help them turn an inspiration into a concrete idea: what problem it solves, for whom, what a first experiment would look like and what could make it fail.
Ask one short, open question at a time and build on their previous answers. Be encouraging but push for specifics.
When the participant signals they are done, restate their idea in two sentences and name the next step they committed to.
Reply in the language the participant writes in.`

const nuggetsAnalysisPrompt = `You analyze the transcript of an interview between an AI journalist and a top-voted participant ("nugget").
Extract the insights worth sharing with the whole group. Respond with ONLY valid JSON (no markdown, no code fences) in this format:
{
  "participant": "display name",
  "summary": "two or three sentences",
  "key_insights": [{"title": "short title", "detail": "one or two sentences", "evidence": "quote or paraphrase from the transcript"}],
  "practices": ["concrete method or habit"],
  "quotes": ["verbatim memorable quote"],
  "themes": ["one or two word theme"]
}
Only use what the participant actually said. Use empty arrays when the transcript has nothing for a field.`

const lightbulbsAnalysisPrompt = `You evaluate the transcript of a conversation between an AI innovation coach and a participant ("lightbulb") about an idea inspired by the session.
Assess the idea's potential. Respond with ONLY valid JSON (no markdown, no code fences) in this format:
{
  "participant": "display name",
  "idea": "one sentence description",
  "problem": "the problem it addresses",
  "target_users": "who benefits",
  "inspiration": "what in the session sparked it",
  "novelty": 1,
  "feasibility": 1,
  "impact": 1,
  "next_steps": ["concrete next step"],
  "risks": ["main risk"],
  "themes": ["one or two word theme"]
}
Scores are integers from 1 (low) to 5 (high). Only use what the participant actually said.`

const overallAnalysisPrompt = `You analyze the transcript of a follow-up conversation from a group session. The participant was routed to the "%s" track.
Respond with ONLY valid JSON (no markdown, no code fences) in this format:
{
  "participant": "display name",
  "track": "nugget or lightbulb",
  "summary": "two or three sentences",
  "highlights": ["most valuable point"],
  "ideas": ["idea or proposal mentioned"],
  "themes": ["one or two word theme"],
  "sentiment": "positive, neutral or negative"
}`

const synthesisPrompt = `You write the final report of a group session from %d individual analyses of type "%s" (%s).
Combine them into one synthesis. Merge duplicates, keep attributions by participant name and rank themes by how many participants mention them.
Respond with ONLY valid JSON (no markdown, no code fences) in this format:
{
  "title": "report title",
  "executive_summary": "one paragraph",
  "top_themes": [{"theme": "name", "participants": ["name"], "summary": "one sentence"}],
  "highlights": [{"participant": "name", "point": "one sentence"}],
  "recommendations": ["actionable recommendation for the group"],
  "open_questions": ["question worth exploring next"]
}`

// agentSystemPrompt frames the follow-up conversation for the participant's track.
func agentSystemPrompt(agentType, displayName string, voteCount int) string {
	if agentType == models.AgentTypeNugget {
		return fmt.Sprintf(nuggetAgentPrompt, displayName, voteCount)
	}
	return fmt.Sprintf(lightbulbAgentPrompt, displayName)
}

// discussionAnalysisPrompt builds the phase 1 extraction prompt for one transcript.
func discussionAnalysisPrompt(analysisType string, discussion *models.Discussion, displayName string) Prompt {
	var system string
	switch analysisType {
	case models.AnalysisTypeNuggets:
		system = nuggetsAnalysisPrompt
	case models.AnalysisTypeLightbulbs:
		system = lightbulbsAnalysisPrompt
	default:
		system = fmt.Sprintf(overallAnalysisPrompt, discussion.AgentType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Participant: %s\nTrack: %s\n\nTranscript:\n", displayName, discussion.AgentType)
	for _, m := range discussion.Messages {
		speaker := "Participant"
		if m.Role == models.RoleAssistant {
			speaker = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(m.Content))
	}

	return Prompt{
		System:   system,
		Messages: []ChatMessage{{Role: models.RoleUser, Content: b.String()}},
	}
}

func analysisTypeFraming(analysisType string) string {
	switch analysisType {
	case models.AnalysisTypeNuggets:
		return "insights extracted from the top-voted participants"
	case models.AnalysisTypeLightbulbs:
		return "ideas evaluated from the remaining participants"
	default:
		return "summaries of every participant's conversation"
	}
}

// synthesisPromptFor builds the phase 2 prompt over all individual analyses.
func synthesisPromptFor(analysisType string, analyses []models.DiscussionAnalysis) Prompt {
	var b strings.Builder
	for i, a := range analyses {
		fmt.Fprintf(&b, "Analysis %d:\n%s\n\n", i+1, strings.TrimSpace(string(a.Content)))
	}
	return Prompt{
		System:   fmt.Sprintf(synthesisPrompt, len(analyses), analysisType, analysisTypeFraming(analysisType)),
		Messages: []ChatMessage{{Role: models.RoleUser, Content: b.String()}},
	}
}
