package agent

// Prompt templates for the pipeline's model calls. Placeholders are
// filled with fmt.Sprintf, so literal text stays free of %-verbs.

const generationHuman = `Context documents:
%s

Question: %s`

const rewriteSystem = `You are a query rewriter for an HR Policy Assistant at Ipoteka Bank. Your task is to reformulate the given employee question to improve retrieval from company normative documents and internal HR policies. Make the query more specific using HR terminology (e.g., "vacation" -> "annual paid leave policy", "sick day" -> "temporary disability leave procedure") while preserving the original intent.

Return ONLY the rewritten query, nothing else.`

const rewriteHuman = `Original question: %s

Rewrite this question to be more specific and improve search results:`

const queryPrepareSystem = `You are a search query optimizer for an HR policy vector store at Ipoteka Bank. Given an employee question, produce a JSON object with these fields:

1. "search_query": the question rewritten into an optimized search query using precise HR/legal terminology. Preserve the language of the original question.
2. "search_queries": array of 2-3 alternative phrasings using different HR terminology. If the question contains MULTIPLE distinct topics, decompose into focused sub-questions instead.
3. "step_back_query": a broader, more abstract version of the question for wider context retrieval.
4. "filters": inferred metadata filters (null if none detected). Possible keys:
   - "language": "en", "ru", or "uz" (only if user explicitly requests a language)
   - "file_type": "pdf", "docx", etc. (only if user mentions document type)
   - "section_header": section name (only if user references a specific policy section)

Return ONLY valid JSON, no markdown, no explanation.`

const queryPrepareHuman = `Employee question: %s

Optimize and transform:`

const hydeHuman = `Write one paragraph that would answer this HR policy question. Base it on typical corporate HR policies.

Question: %s`
