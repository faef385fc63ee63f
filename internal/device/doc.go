// Package device holds the device identity types and the two device
// collections the gateway keeps.
//
// # Identity
//
// A device introduces itself with a JSON document as its first message:
//
//	{"imei":"860000000000001","iccid":"8944...","fver":"1.0.3","csq":21}
//
// ParseIdentity validates it. The IMEI is the primary key everywhere and
// also names the device's log file, so ValidateIMEI restricts it to a safe
// character set.
//
// # Registry
//
// Registry is the in-memory set of devices that are connected and
// registered right now. Sessions insert on registration and remove on
// disconnect; readers get snapshot copies.
//
// # Directory
//
// Directory is the persistent record of every device ever seen, with an
// operator-assigned name and tags. It lives in a JSON file:
//
//	[
//	  {
//	    "base_info": {"imei": "860000000000001", "iccid": "8944...", "fver": "1.0.3"},
//	    "name": "pump house",
//	    "tags": ["north", "pumps"],
//	    "first_seen": "2026-01-02T10:00:00Z",
//	    "last_seen": "2026-03-04T08:15:00Z"
//	  }
//	]
package device
