package summarizer

// SummaryPrompt condenses one finished session in a single call:
// narrative summary, keywords, sentiment, topics, profile delta and
// long-term memory candidates all come back through one tool call.
const SummaryPrompt = `You summarize a finished conversation between a user and an AI character for archival and future context.

Produce, via the SAVE_SESSION_SUMMARY tool:
1. summary: 2-3 sentences covering what was discussed. Write it in the language the user spoke.
2. keywords: up to 5 core keywords.
3. user_sentiment: the user's overall sentiment, strictly one of "positive", "neutral", "negative".
4. topics: the main topics discussed.
5. new_user_info: profile fields the user disclosed this session (nickname, birthday, gender, interests, preferred_topics, preferences). Empty object when nothing new.
6. memories: information worth remembering long-term. Each entry: scope ("global" for facts every character should know, "character" for this character only), category (fact | preference | emphasis | relationship | event), subject (short normalized subject), content (one sentence), importance 1-5 (5 only for things the user explicitly asked to remember).

Only record what the user explicitly stated. Never invent identity fields.`
