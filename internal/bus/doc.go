// Package bus binds the relay to a producer over JSON Lines.
//
// Each input line is one message:
//
//	{"items":[{...},...], "state_models":[{...}], "flush":true}
//
// items are telemetry items. An item's optional "timestamp" (RFC 3339
// string or epoch milliseconds) and "isEvent" fields are read for ordering;
// the whole object is forwarded unchanged. Keys naming a configuration
// category carry that category's snapshot. All keys are optional.
//
// Output lines are tagged with the port they belong to:
//
//	{"port":"response","response":{...}}
//	{"port":"error","error":"..."}
//	{"port":"status","status":"Connected","level":"ok"}
package bus
