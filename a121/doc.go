// Package a121 holds the data model for the A121 exploration protocol: the
// extended structure container, sensor/session configuration, per-session
// metadata, streamed results, and the Client/Recorder interfaces implemented
// by the client and record packages.
//
// Values of different extended structures built from the same session config
// are positionally zippable: group count and per-group sensor-id sequences
// line up one to one. The wire protocol relies on this ordering when matching
// setup metadata to sensors, so the order of groups and entries is preserved
// everywhere.
package a121
