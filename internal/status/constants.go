// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents a controller that has not completed a stage yet.
const HealthUnknown uint16 = 0

// HealthOK represents a controller whose last stage completed.
const HealthOK uint16 = 1

// HealthFault represents a controller stopped by a fault.
const HealthFault uint16 = 2

// ---- FAULT CODES ----

// CodeNone means no fault has been recorded.
const CodeNone uint16 = 0

// Codes 1..3 are fault.Kind values (hardware, transfer, logic).

// CodeUnknown is reported for errors that carry no code.
const CodeUnknown uint16 = 0xFF
