// # Medical Interpreter Relay
//
// This repository provides a Go service that bridges a web client and the OpenAI Realtime API for live doctor/patient speech translation. Each client WebSocket is paired with one upstream realtime connection; audio flows up, translated text and audio flow back, and function calls detected upstream (scheduling a follow-up, sending a lab order) are dispatched to a configured webhook.
package relay
