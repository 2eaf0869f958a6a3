// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

const (
	SpanRun       = "workflow.run"
	SpanResume    = "workflow.resume"
	SpanSuperstep = "workflow.superstep"
	SpanStep      = "workflow.step"
	SpanToolCall  = "workflow.tool_call"

	AttrWorkflow       = "workflow.name"
	AttrConversationID = "workflow.conversation_id"
	AttrStep           = "workflow.step"
	AttrSuperstep      = "workflow.superstep"
	AttrStatus         = "workflow.status"
	AttrTool           = "tool.name"
	AttrFrontier       = "workflow.frontier"
	AttrStateUpdate    = "workflow.state_update"

	DefaultServiceName  = "waypoint"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "waypoint"
)
