package mcpserver

// Raw JSON schemas for the tool catalogue. mcp-go ships them to clients
// verbatim; the handlers enforce the required keys and types themselves so
// the same checks hold for clients that ignore schemas.
const (
	schemaEmpty = `{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}`

	schemaCreateSession = `{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "Optional URL to open in the new window's first tab."}
  },
  "additionalProperties": false
}`

	schemaNavigate = `{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "Absolute URL to navigate to."}
  },
  "required": ["url"],
  "additionalProperties": false
}`

	schemaOpenNewTab = `{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "Optional URL for the new tab."},
    "switch_to": {"type": "boolean", "description": "Make the new tab the active tab."}
  },
  "additionalProperties": false
}`

	schemaTabHandle = `{
  "type": "object",
  "properties": {
    "tab_handle": {"type": "string", "description": "Handle from get_tab_handles."}
  },
  "required": ["tab_handle"],
  "additionalProperties": false
}`

	schemaScreenshot = `{
  "type": "object",
  "properties": {
    "format": {"type": "string", "enum": ["jpeg", "png"], "description": "Image format, default jpeg."},
    "quality": {"type": "integer", "minimum": 1, "maximum": 100, "description": "JPEG quality, clamped to 1-100. Ignored for png."}
  },
  "additionalProperties": false
}`

	schemaNetworkLogs = `{
  "type": "object",
  "properties": {
    "filter": {"type": "string", "description": "Substring match on request URLs."},
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

	schemaConsoleLogs = `{
  "type": "object",
  "properties": {
    "level": {"type": "string", "description": "Minimum level: debug, info, warning, or error."},
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

	schemaPagedLogs = `{
  "type": "object",
  "properties": {
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

	schemaClearLogs = `{
  "type": "object",
  "properties": {
    "buffer": {"type": "string", "enum": ["network", "console", "websocket", "all"], "description": "Buffer to clear, default all."}
  },
  "additionalProperties": false
}`

	schemaEvaluate = `{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "description": "JavaScript expression evaluated in the page."}
  },
  "required": ["expression"],
  "additionalProperties": false
}`

	schemaSelector = `{
  "type": "object",
  "properties": {
    "selector": {"type": "string", "description": "CSS selector."}
  },
  "required": ["selector"],
  "additionalProperties": false
}`

	schemaFillField = `{
  "type": "object",
  "properties": {
    "selector": {"type": "string", "description": "CSS selector of the input."},
    "value": {"type": "string", "description": "Value to set."}
  },
  "required": ["selector", "value"],
  "additionalProperties": false
}`

	schemaExtractText = `{
  "type": "object",
  "properties": {
    "max_length": {"type": "integer", "minimum": 1, "description": "Truncate the extracted text to this many characters."}
  },
  "additionalProperties": false
}`

	schemaWaitFor = `{
  "type": "object",
  "properties": {
    "selector": {"type": "string", "description": "CSS selector to wait for."},
    "timeout_ms": {"type": "integer", "minimum": 1, "maximum": 55000, "description": "Polling budget in milliseconds, default 10000."}
  },
  "required": ["selector"],
  "additionalProperties": false
}`
)
