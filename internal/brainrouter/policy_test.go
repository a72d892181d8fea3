package brainrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideRouteStrictLocalIsHardFloor(t *testing.T) {
	items := []ContextItem{{SourceType: "web_page_text", Public: true, Content: "x"}}
	route, reason := decideRoute(items, PolicyFlags{StrictLocal: true, CloudAllowed: true, AutoCloudEnabled: true})
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "strict_local", reason)
}

func TestDecideRouteTelegramTextForcesLocal(t *testing.T) {
	items := []ContextItem{{SourceType: "telegram_text", Content: "hi"}}
	route, reason := decideRoute(items, PolicyFlags{CloudAllowed: true, AutoCloudEnabled: true})
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "telegram_text_present", reason)
}

func TestDecideRouteFinancialFileRequiresApproval(t *testing.T) {
	items := []ContextItem{{SourceType: "file_content", Sensitivity: "financial", Approved: false}}
	route, reason := decideRoute(items, PolicyFlags{CloudAllowed: true, AutoCloudEnabled: true})
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "required_approval:cloud_financial_file", reason)
}

func TestDecideRouteFinancialFileApprovedGoesCloud(t *testing.T) {
	items := []ContextItem{{SourceType: "file_content", Sensitivity: "financial", Approved: true}}
	route, reason := decideRoute(items, PolicyFlags{CloudAllowed: true, AutoCloudEnabled: true})
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "financial_file_approved", reason)
}

func TestDecideRouteWebPageAutoCloud(t *testing.T) {
	items := []ContextItem{{SourceType: "web_page_text", Content: "x"}}
	route, reason := decideRoute(items, PolicyFlags{CloudAllowed: true, AutoCloudEnabled: true})
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "web_page_text_auto_cloud", reason)
}

func TestDecideRouteLongPublicContextGoesCloud(t *testing.T) {
	longContent := make([]byte, 1300)
	for i := range longContent {
		longContent[i] = 'a'
	}
	items := []ContextItem{{SourceType: "user_prompt", Public: true, Content: string(longContent)}}
	route, reason := decideRoute(items, PolicyFlags{})
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "long_public_context", reason)
}

func TestDecideRouteDefaultsLocal(t *testing.T) {
	items := []ContextItem{{SourceType: "user_prompt", Public: false, Content: "short"}}
	route, reason := decideRoute(items, PolicyFlags{})
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "default_local", reason)
}

func TestHeuristicAutoSwitchSkipsHardFloors(t *testing.T) {
	route, reason := heuristicAutoSwitch(RouteLocal, "strict_local", nil, Request{Policy: PolicyFlags{CloudAllowed: true}}, 5)
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "strict_local", reason)
}

func TestHeuristicAutoSwitchRequiresCloudAllowed(t *testing.T) {
	route, reason := heuristicAutoSwitch(RouteLocal, "default_local", nil, Request{Policy: PolicyFlags{CloudAllowed: false}, TaskKind: "heavy_writing"}, 0)
	assert.Equal(t, RouteLocal, route)
	assert.Equal(t, "default_local", reason)
}

func TestHeuristicAutoSwitchHeavyWritingAllPublic(t *testing.T) {
	items := []ContextItem{{Public: true}}
	route, reason := heuristicAutoSwitch(RouteLocal, "default_local", items, Request{Policy: PolicyFlags{CloudAllowed: true}, TaskKind: "heavy_writing"}, 0)
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "heuristic_task_kind", reason)
}

func TestHeuristicAutoSwitchRepeatedLocalFailure(t *testing.T) {
	route, reason := heuristicAutoSwitch(RouteLocal, "default_local", nil, Request{Policy: PolicyFlags{CloudAllowed: true}}, 2)
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "heuristic_repeated_local_failure", reason)
}

func TestHeuristicAutoSwitchCodeKindSingleFailure(t *testing.T) {
	route, reason := heuristicAutoSwitch(RouteLocal, "default_local", nil, Request{Policy: PolicyFlags{CloudAllowed: true}, PreferredKind: "code"}, 1)
	assert.Equal(t, RouteCloud, route)
	assert.Equal(t, "heuristic_code_local_failure", reason)
}

func TestItemsSummaryBySourceType(t *testing.T) {
	items := []ContextItem{{SourceType: "user_prompt"}, {SourceType: "user_prompt"}, {SourceType: "web_page_text"}}
	summary := itemsSummaryBySourceType(items)
	assert.Equal(t, 2, summary["user_prompt"])
	assert.Equal(t, 1, summary["web_page_text"])
}
