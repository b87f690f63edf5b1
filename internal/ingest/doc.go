// Package ingest turns device messages into topology operations and
// acknowledgements.
//
// Devices publish JSON envelopes on a shared MQTT topic. Each envelope
// carries a command and the command's payload fields at the top level:
//
//	{"command":"dataEntry","deviceID":"G_001:B_001:BD_001","data":"23.5","data_unit":"C"}
//	{"command":"registerBayRack","bay_rack_unique_id":"BR_002","bay_id":4}
//
// The Router decodes the envelope, dispatches on the command and always
// answers with an Acknowledgement, except for envelopes without a known
// command, which are dropped. The Listener subscribes to the inbound topic,
// feeds the Router and publishes acknowledgements to the outbound topic.
package ingest
