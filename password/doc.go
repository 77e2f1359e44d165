// Package password implements one-way salted credential hashing for veriauth
// using argon2id in PHC string format.
//
// Hashing draws a fresh random salt per call, so two hashes of the same
// plaintext differ while both verify. Verification recomputes with the
// parameters embedded in the stored string and compares in constant time.
package password
