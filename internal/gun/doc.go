// Package gun holds the cross-cutting pieces of the optical pointing
// pipeline: the logging streams shared by the layer packages below it.
//
// The layers mirror the data flow of one camera frame:
//
//	l1frames   frame sources and frame dumps
//	l2blobs    bounded flood-fill blob scanning
//	l3markers  marker tracking and corner-role assignment
//	l4aim      projective aim and calibration remap
//	l5control  buttons, recoil and the calibration state machine
//
// Dependency rule: a layer may import lower layers, never higher ones.
// pipeline wires the layers together; transport, monitor and telemetry
// only read the shared report snapshot.
package gun
