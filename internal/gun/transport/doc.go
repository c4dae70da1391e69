// Package transport carries pointer reports off the device.
//
// The host link is a small UDP protocol modelled on the HID interrupt
// channel: the device sends 0xa1 input reports, the host sends 0xa2 output
// reports and 0xa0 hellos. Only the latest report is ever sent; a report
// superseded before the next send tick is dropped, never queued.
//
// Local consumers (the watch command, dashboards) subscribe over a gRPC
// server stream. Sent reports can be captured to a pcap file and read back
// for inspection.
package transport
