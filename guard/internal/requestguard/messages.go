package requestguard

// Locale selects the client-facing message table.
type Locale string

const (
	LocaleFA Locale = "fa"
	LocaleEN Locale = "en"
)

var catalog = map[Locale]map[Code]string{
	LocaleFA: {
		CodeMethodNotAllowed: "متد درخواست مجاز نیست",
		CodeIPBlocked:        "دسترسی شما موقتاً مسدود شده است",
		CodeRateLimited:      "تعداد درخواست‌ها بیش از حد مجاز است. لطفاً بعداً تلاش کنید",
		CodeUnauthorized:     "احراز هویت لازم است",
		CodeMFARequired:      "تأیید دو مرحله‌ای لازم است",
		CodeForbidden:        "شما مجوز دسترسی به این بخش را ندارید",
		CodeCSRF:             "درخواست نامعتبر است",
		CodeBodyTooLarge:     "حجم درخواست بیش از حد مجاز است",
		CodeInvalidInput:     "ورودی نامعتبر است",
		CodeServerError:      "خطای سرور. لطفاً بعداً تلاش کنید",
	},
	LocaleEN: {
		CodeMethodNotAllowed: "Method not allowed",
		CodeIPBlocked:        "Access temporarily blocked",
		CodeRateLimited:      "Too many requests. Please try again later",
		CodeUnauthorized:     "Authentication required",
		CodeMFARequired:      "Two-factor verification required",
		CodeForbidden:        "Permission denied",
		CodeCSRF:             "Invalid request",
		CodeBodyTooLarge:     "Request body too large",
		CodeInvalidInput:     "Invalid input",
		CodeServerError:      "Server error. Please try again later",
	},
}

// Messages resolves codes to client text in one locale.
type Messages struct {
	table map[Code]string
}

// NewMessages falls back to Persian for unknown locales.
func NewMessages(locale Locale) Messages {
	table, ok := catalog[locale]
	if !ok {
		table = catalog[LocaleFA]
	}
	return Messages{table: table}
}

func (m Messages) Text(code Code) string {
	if s, ok := m.table[code]; ok {
		return s
	}
	return m.table[CodeServerError]
}
