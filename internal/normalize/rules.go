package normalize

import "loginwatch/internal/model"

// RulesVersion identifies the revision of the default masking table.
// Bump it whenever DefaultRules changes.
const RulesVersion = 3

// Rule categories.
const (
	CategoryAssetVersion     = "asset-version"
	CategoryURLNonce         = "url-nonce"
	CategoryCSPNonce         = "csp-nonce"
	CategoryScriptToken      = "script-token"
	CategorySessionToken     = "session-token"
	CategoryFormToken        = "form-token"
	CategoryEncryptedPayload = "encrypted-payload"
	CategoryDate             = "date"
	CategoryWidgetAttr       = "widget-attr"
	CategoryBodyAttr         = "body-attr"
	CategoryIPAddress        = "ip-address"
	CategoryAPIKey           = "api-key"
	CategoryCryptoKey        = "crypto-key"
	CategoryLogTimestamp     = "log-timestamp"
)

// Placeholder returns the token a rule of the given category writes in place
// of the volatile value. No rule pattern matches '{', so a placeholder is
// never rewritten by a later pass.
func Placeholder(category string) string {
	return "{masked:" + category + "}"
}

// scriptVar matches the left-hand side of an inline script string assignment
// up to and including the opening quote.
const scriptVar = `(?:var|let|const)\s+[A-Za-z_$][\w$]*\s*=\s*["']`

// DefaultRules returns the versioned masking table. Rules run in slice order.
// Disabled entries are historical variants kept so a target can opt in.
func DefaultRules() []model.MaskingRule {
	return []model.MaskingRule{
		{
			Name:        "asset-version",
			Category:    CategoryAssetVersion,
			Pattern:     `((?:[?&]|&amp;)(?:v|ver|version|t|ts|r|dt|rev|build)=)(?:\d{4}\.\d{2}\.\d{2}(?:\.\d+)?|\d+)`,
			Replacement: "${1}" + Placeholder(CategoryAssetVersion),
			Enabled:     true,
		},
		{
			Name:        "url-nonce",
			Category:    CategoryURLNonce,
			Pattern:     `((?:[?&]|&amp;)(?:nonce|_|cb|cachebuster|rnd|rand|random|timestamp)=)[A-Za-z0-9_.\-]+`,
			Replacement: "${1}" + Placeholder(CategoryURLNonce),
			Enabled:     true,
		},
		{
			Name:        "csp-nonce",
			Category:    CategoryCSPNonce,
			Pattern:     `(\snonce=["'])[A-Za-z0-9+/=_\-]+(["'])`,
			Replacement: "${1}" + Placeholder(CategoryCSPNonce) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "script-hex-token",
			Category:    CategoryScriptToken,
			Pattern:     `(` + scriptVar + `)(?:[0-9a-f]{32}(?:[0-9a-f]{32}|[0-9a-f]{8})?|[0-9A-F]{32}(?:[0-9A-F]{32}|[0-9A-F]{8})?)(["'])`,
			Replacement: "${1}" + Placeholder(CategoryScriptToken) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "script-session-token",
			Category:    CategorySessionToken,
			Pattern:     `((?:var|let|const)\s+[\w$]*(?i:token|sid|session|nonce|csrf|xsrf)[\w$]*\s*=\s*["'])[A-Za-z0-9_+/=.\-]{8,512}(["'])`,
			Replacement: "${1}" + Placeholder(CategorySessionToken) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "form-token",
			Category:    CategoryFormToken,
			Within:      `<input\b[^>]*\bname=["'][^"']*(?i:csrf|xsrf|token|nonce)[^"']*["'][^>]*>`,
			Pattern:     `(\svalue=["'])[^"'{]*(["'])`,
			Replacement: "${1}" + Placeholder(CategoryFormToken) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "encrypted-payload",
			Category:    CategoryEncryptedPayload,
			Pattern:     `((?:fncAesEnc|fncRsaEnc|aesEncrypt|rsaEncrypt|encryptData)\(\s*["'])[A-Za-z0-9+/=]{20,}(["']\s*\))`,
			Replacement: "${1}" + Placeholder(CategoryEncryptedPayload) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "script-date",
			Category:    CategoryDate,
			Pattern:     `(` + scriptVar + `)(?:(?:19|20)\d{6}(?:\d{6})?|\d{4}\.\d{2}\.\d{2})(["'])`,
			Replacement: "${1}" + Placeholder(CategoryDate) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "input-date",
			Category:    CategoryDate,
			Pattern:     `(\bvalue=["'])(?:(?:19|20)\d{12}|(?:19|20)\d{6}|\d{4}\.\d{2}\.\d{2})(["'])`,
			Replacement: "${1}" + Placeholder(CategoryDate) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "widget-iframe-attrs",
			Category:    CategoryWidgetAttr,
			Within:      `<iframe\b[^>]*(?i:gitple|channel|chat|talk)[^>]*>`,
			Pattern:     `(\s(?:title|class|style)=")[^"{]*(")`,
			Replacement: "${1}" + Placeholder(CategoryWidgetAttr) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "body-attrs",
			Category:    CategoryBodyAttr,
			Within:      `<body\b[^>]*>`,
			Pattern:     `(\s(?:class|style)=")[^"{]*(")`,
			Replacement: "${1}" + Placeholder(CategoryBodyAttr) + "${2}",
			Enabled:     true,
		},
		{
			Name:        "script-ip-address",
			Category:    CategoryIPAddress,
			Pattern:     `(` + scriptVar + `)\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(["'])`,
			Replacement: "${1}" + Placeholder(CategoryIPAddress) + "${2}",
		},
		{
			Name:        "plugin-key",
			Category:    CategoryAPIKey,
			Pattern:     `("pluginKey"\s*:\s*["'])[a-f0-9\-]{36}(["'])`,
			Replacement: "${1}" + Placeholder(CategoryAPIKey) + "${2}",
		},
		{
			Name:        "api-key",
			Category:    CategoryAPIKey,
			Pattern:     `("apiKey"\s*:\s*["'])[a-f0-9]{64}(["'])`,
			Replacement: "${1}" + Placeholder(CategoryAPIKey) + "${2}",
		},
		{
			Name:        "crypto-key",
			Category:    CategoryCryptoKey,
			Pattern:     `(CryptoJS\.enc\.(?:Latin1|Utf8|Hex)\.parse\(\s*["'])[A-Za-z0-9]{16,64}(["']\s*\))`,
			Replacement: "${1}" + Placeholder(CategoryCryptoKey) + "${2}",
		},
		{
			Name:        "log-timestamp",
			Category:    CategoryLogTimestamp,
			Pattern:     `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3}`,
			Replacement: Placeholder(CategoryLogTimestamp),
		},
	}
}
