package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldAssignee     = "assignee"
	FieldAssignees    = "assignees"
	FieldCategory     = "category"
	FieldTask         = "task"
	FieldScore        = "score"
	FieldMultiplier   = "multiplier"
	FieldAmount       = "amount"
	FieldRecordID     = "record_id"
	FieldAttemptID    = "attempt_id"
	FieldDrawState    = "draw_state"
	FieldPrizeID      = "prize_id"
	FieldPrizeName    = "prize_name"
	FieldRarity       = "rarity"
	FieldInventoryID  = "inventory_id"
	FieldEventType    = "event_type"
	FieldRetries      = "retries"
	FieldSheetsRowRef = "sheets_row_ref"
	FieldRoute        = "route"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentChore    = "chore"
	ComponentExpense  = "expense"
	ComponentGacha    = "gacha"
	ComponentSummary  = "summary"
	ComponentMaster   = "master"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentRecovery = "recovery"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentTrace    = "trace"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// OpDraw is the operation name for gacha draws
const OpDraw = "draw"

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithChore adds chore submission fields
func (f LogFields) WithChore(category, task string, score float64, multiplier int, assignees []string) LogFields {
	f[FieldCategory] = category
	f[FieldTask] = task
	f[FieldScore] = score
	f[FieldMultiplier] = multiplier
	f[FieldAssignees] = assignees
	return f
}

// WithExpense adds expense fields
func (f LogFields) WithExpense(id int64, category string, amount int64) LogFields {
	f[FieldRecordID] = id
	f[FieldCategory] = category
	f[FieldAmount] = amount
	return f
}

// WithDraw adds draw attempt fields
func (f LogFields) WithDraw(attemptID, assignee, state string) LogFields {
	f[FieldAttemptID] = attemptID
	f[FieldAssignee] = assignee
	f[FieldDrawState] = state
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
