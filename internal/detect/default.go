package detect

// DefaultRules is a small built-in rule set covering the categories the
// protection levels block on.
var DefaultRules = []Rule{
	{Pattern: `ignore (all )?(previous|prior|above) instructions`, Category: CategoryPromptInjection, Severity: SeverityHigh, Threat: 4, Description: "instruction override attempt"},
	{Pattern: `you are now (in )?(developer|dan|jailbreak) mode`, Category: CategoryPromptInjection, Severity: SeverityHigh, Threat: 4, Description: "role hijack attempt"},
	{Pattern: `reveal (your )?(system prompt|hidden instructions)`, Category: CategoryPromptInjection, Severity: SeverityMedium, Threat: 3, Description: "system prompt extraction"},
	{Pattern: `rm\s+-rf\s+(/|~)`, Category: CategoryDestructiveCommand, Severity: SeverityCritical, Threat: 5, Description: "recursive delete of root or home"},
	{Pattern: `mkfs\.|dd\s+if=/dev/(zero|random)`, Category: CategoryDestructiveCommand, Severity: SeverityCritical, Threat: 5, Description: "disk destruction"},
	{Pattern: `:\(\)\s*\{\s*:\|:&\s*\};:`, Category: CategoryDestructiveCommand, Severity: SeverityCritical, Threat: 5, Description: "fork bomb"},
	{Pattern: `(curl|wget)[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b`, Category: CategoryDestructiveCommand, Severity: SeverityHigh, Threat: 4, Description: "pipe to shell"},
	{Pattern: `/etc/(passwd|shadow|sudoers)`, Category: CategorySystemPath, Severity: SeverityHigh, Threat: 4, Description: "system credential file"},
	{Pattern: `~?/?\.ssh/id_(rsa|ed25519)`, Category: CategorySystemPath, Severity: SeverityHigh, Threat: 4, Description: "private key path"},
	{Pattern: `\.aws/credentials`, Category: CategorySystemPath, Severity: SeverityHigh, Threat: 4, Description: "cloud credential file"},
	{Pattern: `AKIA[0-9A-Z]{16}`, Category: CategoryDataLeak, Severity: SeverityCritical, Threat: 5, Description: "AWS access key id"},
	{Pattern: `-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`, Category: CategoryDataLeak, Severity: SeverityCritical, Threat: 5, Description: "private key material"},
	{Pattern: `\b(sk|pk)_(live|test)_[0-9a-zA-Z]{16,}`, Category: CategoryDataLeak, Severity: SeverityHigh, Threat: 4, Description: "payment API key"},
	{Pattern: `\bgh[pousr]_[0-9A-Za-z]{30,}`, Category: CategoryDataLeak, Severity: SeverityHigh, Threat: 4, Description: "GitHub token"},
	{Pattern: `https?://[^\s]*\.(zip|mov|tk)(/|\s|$)`, Category: CategorySuspiciousURL, Severity: SeverityLow, Threat: 2, Description: "suspicious top-level domain"},
	{Pattern: `https?://\d{1,3}(\.\d{1,3}){3}`, Category: CategorySuspiciousURL, Severity: SeverityMedium, Threat: 2, Description: "raw IP URL"},
}
