// Package command defines operator commands and the broadcast bus that
// carries them to device sessions.
//
// # Text form
//
//	123:reboot          one device
//	123,456:reboot      several devices
//	reboot              every device
//	ALL:reboot          every device (canonical form)
//
// # Bus
//
// The Bus is a bounded ring buffer shared by all subscriptions. Send
// never blocks; slow subscriptions lose the oldest commands and get a
// *LaggedError, then continue from the oldest retained command.
//
//	sub := bus.Subscribe()
//	defer sub.Close()
//	for {
//	    select {
//	    case <-sub.Ready():
//	        cmd, err := sub.TryRecv()
//	        ...
//	    }
//	}
package command
