package deb

// ControlField represents a standard field in a Debian control file or
// source description.
type ControlField string

const (
	FieldPackage         ControlField = "Package"
	FieldVersion         ControlField = "Version"
	FieldArchitecture    ControlField = "Architecture"
	FieldSource          ControlField = "Source"
	FieldMaintainer      ControlField = "Maintainer"
	FieldDescription     ControlField = "Description"
	FieldFiles           ControlField = "Files"
	FieldChecksumsSha1   ControlField = "Checksums-Sha1"
	FieldChecksumsSha256 ControlField = "Checksums-Sha256"
	FieldChecksumsPrefix ControlField = "Checksums-"
	FieldIndexFilename   ControlField = "Filename"
	FieldIndexSize       ControlField = "Size"
	FieldIndexMD5sum     ControlField = "MD5sum"
	FieldIndexSHA1       ControlField = "SHA1"
	FieldIndexSHA256     ControlField = "SHA256"
)

// RequiredFields are the control fields a binary package must declare.
var RequiredFields = []ControlField{FieldPackage, FieldVersion, FieldArchitecture}

// ControlFile represents a standard file found in the control member.
type ControlFile string

const (
	FileControl ControlFile = "control"
)

// PackageFile represents a member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary  PackageFile = "debian-binary"
	PkgControlTar    PackageFile = "control.tar"
	PkgControlTarGz  PackageFile = "control.tar.gz"
	PkgControlTarXz  PackageFile = "control.tar.xz"
	PkgControlTarZst PackageFile = "control.tar.zst"
)

// pgpSignedMessage marks the start of a clearsigned OpenPGP envelope.
const pgpSignedMessage = "-----BEGIN PGP SIGNED MESSAGE-----"
