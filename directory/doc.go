// Package directory reads the authoritative user and group snapshot.
//
// Readers:
//   - ldap: Active Directory / LDAP with paged searches
//   - file: a YAML snapshot on disk, for staging and tests
//   - Static: fixed in-memory data
package directory
