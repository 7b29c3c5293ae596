package testutil

import "fmt"

// EchoScript is a workflow with one required string parameter "msg" that
// returns {"status":"success","payload":msg}.
func EchoScript() *ScriptBuilder {
	return NewScript("Echo").
		WithCategory("Testing").
		WithParam("msg", "string", Required()).
		WithPreamble(`msg=""`).
		WithHandler("configure", ArgExtractor("msg", "msg")+"; "+reply(ConfigureOK)).
		WithHandler("execute", `printf '{"ok":true,"result":{"status":"success","payload":"%s"}}\n' "$msg"`)
}

// PayloadScript returns a workflow whose execute result carries payload,
// which must already be valid JSON.
func PayloadScript(name, category, payload string) *ScriptBuilder {
	return NewScript(name).
		WithCategory(category).
		WithReply("execute", fmt.Sprintf(`{"ok":true,"result":{"status":"success","payload":%s}}`, payload))
}

// HangingScript never answers execute until its stdin closes.
func HangingScript(name string) *ScriptBuilder {
	return NewScript(name).WithHandler("execute", "read -r _; "+reply(ExecuteOK))
}

// CrashingScript writes msg to stderr and exits when op arrives.
func CrashingScript(name, op, msg string) *ScriptBuilder {
	return NewScript(name).WithHandler(op, "echo "+shellQuote(msg)+" >&2; exit 3")
}

// MalformedScript has a metadata block with a tab in its indentation.
const MalformedScript = "#!/bin/sh\n# WORKFLOW_META:\n#   name: Broken\n#\tcategory: Bad\n# configure validate execute\n"
