package brainrouter

import "github.com/localfirst/assistant/internal/masking"

// sanitizeResult carries the surviving items plus the counters the caller
// must emit on llm_request_sanitized.
type sanitizeResult struct {
	Items            []ContextItem
	RemovedBySource  map[string]int
	RedactedCount    int
	TruncatedCount   int
	Emptied          bool
}

// sanitizeForCloud implements spec.md §4.C step 5. Only called on the CLOUD
// path; LOCAL requests are never sanitized since the device never leaves
// the machine.
func sanitizeForCloud(items []ContextItem, policy PolicyFlags) sanitizeResult {
	res := sanitizeResult{RemovedBySource: map[string]int{}}

	maxItemChars := policy.MaxCloudItemChars
	if maxItemChars <= 0 {
		maxItemChars = 4000
	}
	maxChars := policy.MaxCloudChars
	if maxChars <= 0 {
		maxChars = 8000
	}

	total := 0
	for _, it := range items {
		if it.SourceType == "telegram_text" || it.SourceType == "screenshot_text" {
			res.RemovedBySource[it.SourceType]++
			continue
		}
		if it.SourceType == "file_content" && it.Sensitivity == "financial" && !it.Approved {
			res.RemovedBySource[it.SourceType]++
			continue
		}

		content := it.Content
		if masking.ContainsSecret(content) {
			res.RedactedCount++
			content = masking.RedactSecrets(content)
		}

		if len(content) > maxItemChars {
			content = content[:maxItemChars]
			res.TruncatedCount++
		}

		if total >= maxChars {
			res.RemovedBySource[it.SourceType]++
			continue
		}
		if total+len(content) > maxChars {
			content = content[:maxChars-total]
			res.TruncatedCount++
		}
		total += len(content)

		it.Content = content
		res.Items = append(res.Items, it)
	}

	res.Emptied = len(res.Items) == 0 && len(items) > 0
	return res
}
