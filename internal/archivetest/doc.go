// Package archivetest builds archive fixtures for tests: zip (plain,
// compressed, ZipCrypto and WinZip AES), tar with every supported
// compression, and stored 7z archives.
package archivetest
