package prompt

import "valorbot/pkg/intent"

type intentGuidance struct {
	Focus     string
	Style     string
	ToolUsage string
	Specific  string
}

var guidance = map[intent.Intent]intentGuidance{
	intent.CasualChat: {
		Focus:     "Friendly conversation and rapport.",
		Style:     "Relaxed and short, one or two sentences unless asked for more.",
		ToolUsage: "Avoid tools unless the user refers to something said earlier.",
		Specific:  "Answer like a colleague in a team chat, not like an assistant.",
	},
	intent.QuestionAnswer: {
		Focus:     "A correct, complete answer to the question.",
		Style:     "Clear and structured, answer first then explanation.",
		ToolUsage: "Search the web when the answer may have changed recently.",
		Specific:  "State assumptions and say when you are not sure.",
	},
	intent.ProjectQuery: {
		Focus:     "Status of tracked projects and work items.",
		Style:     "Concise status updates with owners and next steps.",
		ToolUsage: "Query project data before answering.",
		Specific:  "Never invent tasks or deadlines that are not in the project data.",
	},
	intent.DevelopmentTask: {
		Focus:     "Working code and concrete technical steps.",
		Style:     "Technical and precise, code in fenced blocks.",
		ToolUsage: "Look up documentation and linked pages when relevant.",
		Specific:  "Prefer small, testable changes and mention how to verify them.",
	},
	intent.ImageGeneration: {
		Focus:     "Producing the requested image.",
		Style:     "Brief. Let the image speak.",
		ToolUsage: "Call the image generation tool with a detailed visual prompt.",
		Specific:  "Expand short requests into a vivid description before generating.",
	},
	intent.ImageAnalysis: {
		Focus:     "Describing and interpreting the shared image.",
		Style:     "Observant and specific.",
		ToolUsage: "Tools are rarely needed; describe what is visible.",
		Specific:  "Answer the question asked about the image, not just its contents.",
	},
	intent.WebSearch: {
		Focus:     "Current, sourced information.",
		Style:     "Factual summary with sources.",
		ToolUsage: "Search the web first, then fetch the most relevant result.",
		Specific:  "Mention how recent the information is.",
	},
	intent.LinkAnalysis: {
		Focus:     "What the shared link contains and why it matters.",
		Style:     "Short summary followed by key points.",
		ToolUsage: "Fetch the link before commenting on it.",
		Specific:  "Say so plainly when a page could not be loaded.",
	},
	intent.SystemHealth: {
		Focus:     "Bot and host health.",
		Style:     "Terse status report.",
		ToolUsage: "Use the system health tool.",
		Specific:  "Report numbers as measured, without commentary.",
	},
	intent.Unclear: {
		Focus:     "Working out what the user wants.",
		Style:     "Helpful and brief.",
		ToolUsage: "Use chat history to recover context before asking.",
		Specific:  "Ask one clarifying question when the request is ambiguous.",
	},
}

var instructions = map[intent.Intent][]string{
	intent.CasualChat: {
		"Keep it conversational.",
		"Do not offer a list of things you can do.",
	},
	intent.QuestionAnswer: {
		"Answer the question directly in the first sentence.",
		"Add detail only where it helps understanding.",
		"Cite sources when you used a search.",
	},
	intent.ProjectQuery: {
		"Summarise status per project.",
		"Highlight blocked or overdue items first.",
		"If project data is unavailable, say so.",
	},
	intent.DevelopmentTask: {
		"Break the task into steps.",
		"Show code rather than describing it.",
		"Point out risks and edge cases.",
	},
	intent.ImageGeneration: {
		"Generate exactly one image per request.",
		"Return the tool result unchanged so the image can be delivered.",
	},
	intent.ImageAnalysis: {
		"Describe the image before interpreting it.",
		"Quote any visible text exactly.",
	},
	intent.WebSearch: {
		"Search before answering.",
		"Prefer primary sources.",
		"Include links to what you used.",
	},
	intent.LinkAnalysis: {
		"Fetch every link the user shared.",
		"Summarise in three bullet points or fewer.",
	},
	intent.SystemHealth: {
		"Report uptime and resource usage.",
		"Flag anything that looks abnormal.",
	},
	intent.Unclear: {
		"Make a reasonable guess when the risk of being wrong is low.",
		"Otherwise ask one short clarifying question.",
	},
}
