package services

import (
	"fmt"

	"github.com/prepdeck/backend/models"
)

// Prompt builders for the Gemini calls. All of them instruct the model to
// return pure JSON so responses can be parsed without scraping.

func buildFeedbackPrompt(session *models.Session, question, answer string) string {
	return fmt.Sprintf(`You are an experienced technical interviewer evaluating a candidate's answer.

Context:
- Target role: %s
- Candidate experience: %d years
- Focus topics: %s

Question: %q

Candidate's answer:
%s

Task:
- Critique the answer for correctness, depth, and clarity.
- Point out what is missing or wrong, and what was done well.
- Keep the tone constructive and specific; avoid generic praise.
- If a code example would strengthen the answer, include one in a markdown code block with the language.

Return a plain-text critique of at most 300 words. Do NOT add any preamble.`,
		session.Role,
		session.Experience,
		session.TopicsToFocus,
		question,
		answer)
}

func buildQuestionGenerationPrompt(role string, experience int, topics string, count int) string {
	return fmt.Sprintf(`You are an AI trained to generate technical interview questions and answers.

Task:
- Role: %s
- Candidate Experience: %d years
- Focus Topics: %s
- Write %d interview questions.
- For each question, generate a detailed but beginner-friendly answer.
- If the answer needs a code example, ALWAYS wrap it in markdown code blocks with language.
- Keep formatting very clean.

Return a pure JSON array like:
[
    {
        "question": "Question here?",
        "answer": "Answer here."
    }
]

Important: Do NOT add any extra text. Only return valid JSON.`,
		role, experience, topics, count)
}

func buildQuizPrompt(session *models.Session, covered []string, count int) string {
	material := ""
	for i, q := range covered {
		material += fmt.Sprintf("%d. %s\n", i+1, q)
	}

	return fmt.Sprintf(`You are an AI trained to generate multiple-choice quiz questions for interview preparation.

Context:
- Target role: %s
- Candidate experience: %d years
- Focus topics: %s

The candidate practiced these interview questions:
%s
Task:
- Write %d multiple-choice questions that test understanding of the material above.
- Each question must have EXACTLY 4 options.
- "correctAnswer" is the zero-based index (0-3) of the right option.
- Include a short explanation of why the correct option is right.
- Keep questions self-contained; do not reference "the material" or question numbers.

Return a pure JSON array like:
[
    {
        "question": "Question here?",
        "options": ["Option A", "Option B", "Option C", "Option D"],
        "correctAnswer": 0,
        "explanation": "Why the answer is correct."
    }
]

Important: Do NOT add any extra text. Only return valid JSON.`,
		session.Role,
		session.Experience,
		session.TopicsToFocus,
		material,
		count)
}

func buildExplanationPrompt(question string) string {
	return fmt.Sprintf(`You are an AI trained to generate explanations for interview questions.

Task:
- Explain the following interview question in depth for a beginner.
- Question: %q
- Provide a short and clear title.
- If the explanation includes a code example, ALWAYS use markdown code blocks with language.

Return a valid JSON object like:
{
    "title": "Short title here?",
    "explanation": "Explanation here."
}

Important: Do NOT add any extra text outside the JSON.`, question)
}
