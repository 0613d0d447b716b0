// Package domain defines protection entities and their value-object rules:
// locations, permission and flag sets, player identities and audit history.
//
// Entities here carry no storage concerns. Conversion to and from persisted
// rows lives in the codec package.
package domain
