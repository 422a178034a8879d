// Package secure provides memory-safe handling of master keys.
//
// Master key values unlock keystores, so they are sealed in memguard
// enclaves as soon as a reader resolves them:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Protected from swapping via mlock
//   - Wiped when the locked buffer is destroyed
//
// # Usage
//
//	buf, _ := secure.NewSecureBuffer([]byte(password))
//	defer buf.Destroy()
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	use(locked.Bytes())
//
// Memory locking depends on RLIMIT_MEMLOCK on Linux; when mlock is not
// available memguard falls back to ordinary memory.
package secure
