// Package wire implements the GUI RPC message framing.
//
// # Protocol Overview
//
// Every message in both directions is an XML document followed by a single
// 0x03 terminator byte. Requests are wrapped in a fixed root element holding
// exactly one command element:
//
//	<boinc_gui_rpc_request><get_host_info/></boinc_gui_rpc_request>\x03
//
// Replies are usually wrapped in <boinc_gui_rpc_reply>, but the wrapper is not
// guaranteed, so Reply.Body normalizes both forms:
//
//	<boinc_gui_rpc_reply>
//	<nonce>1596811036.412331</nonce>
//	</boinc_gui_rpc_reply>
//	\x03
//
// Empty elements must be written as <tag/>. The daemon rejects <tag />.
//
// # Reading
//
// Replies such as get_state can be several megabytes and arrive across many
// reads of any size. Reader keeps consuming until it sees the terminator and
// leaves any bytes after it buffered for the next message.
package wire
