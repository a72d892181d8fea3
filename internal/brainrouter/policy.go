package brainrouter

// decideRoute implements spec.md §4.C step 3: first-match-wins initial route
// decision over the pre-sanitization context items.
func decideRoute(items []ContextItem, policy PolicyFlags) (Route, string) {
	if policy.StrictLocal {
		return RouteLocal, "strict_local"
	}
	for _, it := range items {
		if it.SourceType == "telegram_text" {
			return RouteLocal, "telegram_text_present"
		}
	}
	for _, it := range items {
		if it.SourceType == "screenshot_text" {
			return RouteLocal, "screenshot_text_present"
		}
	}
	for _, it := range items {
		if it.SourceType == "file_content" && it.Sensitivity == "financial" {
			if it.Approved && policy.CloudAllowed && policy.AutoCloudEnabled {
				return RouteCloud, "financial_file_approved"
			}
			return RouteLocal, "required_approval:cloud_financial_file"
		}
	}
	if policy.AutoCloudEnabled && policy.CloudAllowed {
		for _, it := range items {
			if it.SourceType == "web_page_text" {
				return RouteCloud, "web_page_text_auto_cloud"
			}
		}
	}
	total := 0
	allLongPublic := len(items) > 0
	for _, it := range items {
		switch it.SourceType {
		case "user_prompt", "system_note", "internal_summary":
			if it.Public {
				total += len(it.Content)
				continue
			}
		}
		allLongPublic = false
	}
	if allLongPublic && total >= 1200 {
		return RouteCloud, "long_public_context"
	}
	return RouteLocal, "default_local"
}

// heuristicAutoSwitch implements spec.md §4.C step 4: overriding an initial
// LOCAL decision to CLOUD based on task kind, aggregate web content, or
// accumulated local failures. Never fires for telegram_text_present or
// strict_local — those are hard floors.
func heuristicAutoSwitch(route Route, reason string, items []ContextItem, req Request, localFailures int) (Route, string) {
	if route != RouteLocal {
		return route, reason
	}
	if reason == "telegram_text_present" || reason == "strict_local" {
		return route, reason
	}
	if !req.Policy.CloudAllowed {
		return route, reason
	}

	switch req.TaskKind {
	case "heavy_writing", "long_form", "report":
		allPublic := true
		for _, it := range items {
			if !it.Public {
				allPublic = false
				break
			}
		}
		if allPublic {
			return RouteCloud, "heuristic_task_kind"
		}
	}

	if len(items) > 0 {
		total := 0
		allWeb := true
		for _, it := range items {
			if it.SourceType != "web_page_text" {
				allWeb = false
				break
			}
			total += len(it.Content)
		}
		if allWeb && total >= 1200 {
			return RouteCloud, "heuristic_web_volume"
		}
	}

	if localFailures >= 2 {
		return RouteCloud, "heuristic_repeated_local_failure"
	}
	if req.PreferredKind == "code" && localFailures >= 1 {
		return RouteCloud, "heuristic_code_local_failure"
	}

	return route, reason
}

// itemsSummaryBySourceType counts pre-sanitization items per source_type,
// attached to llm_route_decided regardless of the sanitized outcome.
func itemsSummaryBySourceType(items []ContextItem) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		out[it.SourceType]++
	}
	return out
}
