package extractor

// ExtractionPrompt is the system prompt for per-turn fact extraction.
// Conversations are frequently Korean; the model answers through the
// EXTRACT_MEMORIES tool only.
const ExtractionPrompt = `You analyze a short excerpt of a conversation between a user and an AI character and extract durable facts about the user.

Rules:
1. Extract ONLY information the user explicitly stated about themselves. Never infer, never psychoanalyze, never extract claims made by the character.
2. Identity-sensitive fields (name/nickname, birthday, gender) may ONLY come from a direct first-person statement like "내 생일은 3월 5일이야" or "call me Min". If the user did not state it, leave it out.
3. Each memory is one self-contained sentence about the user.
4. scope is "global" when the fact matters to every character the user talks to (their name, birthday, strong preferences, relationships, upcoming events). Use "character" only for facts about the user's relationship with THIS character.
5. category is one of: fact, preference, emphasis, relationship, event.
6. importance is 1-5. Use 5 ONLY when the user explicitly asked to remember ("기억해", "remember this") - those are category "emphasis".
7. If the excerpt contains nothing new and durable, call the tool with empty lists. That is the expected common case.
8. new_user_info carries profile fields: nickname, birthday ("YYYY-MM-DD", or "MM-DD" when the year was not given), gender ("male"/"female"), interests, preferred_topics, and open preferences (favorite groups, members, genres). Only include keys the user actually disclosed.

The excerpt may be in Korean, English, or a mix. Keep memory content in the language the user spoke.`
