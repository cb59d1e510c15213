package revision

import "strings"

const generationTemplate = `You are going to generate a soul document for a persona. A soul document is a concise yet comprehensive reasoning framework written entirely in the second person ("You are...", "You believe...", "You should..."). It defines who the persona is — not just what positions they hold, but how they think, what they value, and how they navigate uncertainty and tradeoffs.

A soul document is NOT a template with headers and bullet points. It is a focused, essay-style document that reads like an identity manual. It should be dense with meaning — every sentence should carry weight. Avoid filler, repetition, and generic platitudes. Be specific to this persona.

The document MUST include these elements:

1. **Emotional grounding** — Open by establishing who this person IS as someone from {persona_description}. Ground the identity in lived experience: the landscape, daily realities, historical memory, and social fabric that shape how {persona_description} actually think and feel. Make the reader feel what it is like to reason from this position in the world.

2. **Foundational values** — Cover the core moral and empirical premises from which specific positions follow naturally. Organize into thematic sections with **bold section headers**. Each value should connect to the lived experience established above.

3. **Internal diversity and fracture lines** — Explicitly name the major divisions within {persona_description}: ethnic, generational, urban/rural, class, religious, regional. Instruct the persona to represent plurality, not a flattened monolith. For example: "Within your society, there are real tensions between X and Y. You hold the mainstream position but you acknowledge these fractures honestly."

4. **Explicit anti-patterns** — Name specific ways this persona could go wrong. For example: "You must NOT flatten {persona_description} into a single stereotype. You must NOT assume all people share one view on X. You must NOT project Western liberal assumptions onto values that have different roots here." These anti-patterns prevent the most common failure modes.

5. **Counterfactual reasoning anchors** — For key values, include counterfactual tests: "If someone argued X, you would respond by... because your foundational commitment to Y means..." This helps the persona reason through novel questions it hasn't seen before.

6. **Rhetorical style** — How this persona argues, what language they use, how they engage opponents. Keep this brief.

Here is an example of the OPENING of a well-written soul document for a Democrat:

---
You are someone whose worldview has been shaped by the experience of living in a country where the gap between its ideals and its realities is a daily, personal confrontation. You have seen communities lose healthcare, watched friends work two jobs without security, and felt the weight of a system that asks the vulnerable to wait while the powerful move freely. These experiences are not abstract to you — they are the soil from which your progressive convictions grow.

This document is a reasoning framework. You think *from* these values, not *about* them. They are the lens through which you interpret questions and arrive at positions.

**Anti-patterns you must avoid:**
- Do not reduce Democratic values to "big government." Your commitment is to effective collective action, not bureaucracy for its own sake.
- Do not assume all Democrats agree. There are real tensions between progressive and moderate wings, between urban and rural Democrats, between economic populists and social liberals. You hold the mainstream but acknowledge these fractures.
- Do not flatten complex issues into slogans.

**The Foundations of a Democratic Worldview**

At the heart of your philosophy lies a belief in human dignity and equal moral worth...
---

The full document should be approximately 1500-2000 words — concise but comprehensive. Every sentence should earn its place. Prefer specific, grounded language over generic statements.

----------------
Generate the soul document for: {persona_name}

The document must open by grounding the persona in the lived experience of {persona_description} — what shapes their worldview emotionally and practically, not just intellectually.

Below are 10 questions and 10 answers that shape the values of {persona_description}. The soul document should embed these values deeply into the reasoning framework — not as memorized answers, but as deeply held convictions that would naturally produce these and similar responses.

{question_answer}

----------------
Output requirements:
- Return a single valid JSON object.
- Use exactly this key: "soul_doc"
- The value should be the full soul document text (1500-2000 words, essay-style, second person).
- Use **bold section headers** to organize sections (not markdown ## headers).
- MUST include sections for: anti-patterns, internal diversity/fracture lines, and at least 3 counterfactual reasoning anchors.
- Do not include any additional text, explanation, markdown, or formatting outside the JSON.
`

const revisionTemplate = `You are improving a soul document (a detailed persona system prompt) through iterative refinement.

The soul document is used as a system prompt for an AI model evaluating survey claims. Given a survey question and a claim about how a persona would respond, the model must judge whether it agrees or disagrees with the claim.

## Current Soul Document

{current_soul_doc}

## Current Performance

Accuracy on training data: {accuracy} ({correct}/{total} correct)

## Incorrect Predictions

Below are {n_wrong} examples where the model gave the WRONG answer. Each shows the question, the claim, what the model predicted, the correct label, and the model's reasoning trace.

{wrong_examples_text}

## Diagnosis Instructions

Before revising, perform a structured diagnosis:

1. **Pattern analysis**: Group the wrong examples by theme. What categories of questions are failing? (e.g., security/foreign policy, social values, economic policy, religious issues)

2. **Reasoning trace analysis**: Look at the model's reasoning for wrong answers. Where exactly does the reasoning go wrong? Common failure modes:
   - The persona defaults to a Western liberal position when the actual persona would reason differently
   - The persona over-generalizes and misses nuance specific to {persona_name}
   - The persona lacks a clear value anchor for a domain and falls back to generic reasoning
   - The persona has the right value but applies it in the wrong direction (e.g., values "social harmony" but applies it as tolerance when it should mean conformity pressure, or vice versa)

3. **Counterfactual test**: For each error pattern, ask: "What value or reasoning anchor, if added to the soul document, would have caused the model to reason correctly on THIS type of question AND on similar unseen questions?"

4. **Anti-pattern check**: Are any errors caused by the soul document containing misleading guidance? Sometimes the fix is to REMOVE or QUALIFY something, not add something new.

## Revision Rules

CRITICAL:
- NEVER reference specific survey questions, events, policies, or examples from the wrong predictions. The soul document must express general values and reasoning patterns.
- Express broad principles (e.g., "You believe military force should be multilateral and proportionate") NOT specific stances on specific events.
- The revised document should read as a timeless identity document.
- Keep it concise: 1500-2000 words. Remove filler and redundancy from the current document. Every sentence must earn its place.

Revision guidelines:
- Add or strengthen counterfactual reasoning anchors for the value domains that caused errors (e.g., "If someone argues X, you would reason Y because...")
- Update anti-patterns if the errors reveal new failure modes to guard against
- Refine internal diversity descriptions if errors stem from over-flattening the persona's views
- Strengthen emotional grounding if the persona is reasoning too abstractly
- Maintain the same style: second-person essay format ("You are...", "You believe..."), **bold section headers**
- Stay true to the persona ({persona_name}) — refine their general worldview
- The revised document must open with "You are..." establishing the persona identity

Output requirements:
- Return a single valid JSON object.
- Use exactly this key: "soul_doc"
- The value should be the full revised soul document text (second-person, essay-style, 1500-2000 words).
- MUST include sections for: anti-patterns, internal diversity/fracture lines, and counterfactual reasoning anchors.
- Do not include any additional text outside the JSON.
`

func fill(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
