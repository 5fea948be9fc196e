// Package calibration defines the servo calibration data model and the offset
// computation. It contains:
//
//   - Matrix: a fixed 3x4 grid indexed [joint][leg], the unit of persistence
//   - State: the live correction matrix plus the standard reference pose and
//     the two snapshots taken when the record was loaded
//   - ComputeOffsets / ResetToStandard: the operations that turn an
//     operator's dialed joint values into a new correction matrix
//
// Rows follow leg.Joint order (hip, thigh, calf) and columns follow leg.ID
// order (left-front, right-front, left-back, right-back) everywhere in this
// module, including the on-disk record.
package calibration
