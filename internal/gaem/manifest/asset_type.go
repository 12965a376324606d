package manifest

import (
	"fmt"
	"path"
	"strings"
)

// AssetType is the closed set of asset kinds a package may declare.
type AssetType uint8

const (
	AssetSprite AssetType = iota + 1
	AssetAudio
	AssetScript
	AssetData
	AssetFont
)

var assetTypeNames = map[AssetType]string{
	AssetSprite: "Sprite",
	AssetAudio:  "Audio",
	AssetScript: "Script",
	AssetData:   "Data",
	AssetFont:   "Font",
}

// ParseAssetType parses the wire name of an asset type.
func ParseAssetType(name string) (AssetType, error) {
	for t, n := range assetTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown asset type %q", name)
}

// Valid reports whether t is one of the declared asset types.
func (t AssetType) Valid() bool {
	_, ok := assetTypeNames[t]
	return ok
}

func (t AssetType) String() string {
	if name, ok := assetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AssetType(%d)", uint8(t))
}

// MarshalText encodes the type by name.
func (t AssetType) MarshalText() ([]byte, error) {
	name, ok := assetTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown asset type %d", uint8(t))
	}
	return []byte(name), nil
}

// UnmarshalText decodes the type from its name.
func (t *AssetType) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var extensionTypes = map[string]AssetType{
	".png": AssetSprite, ".jpg": AssetSprite, ".jpeg": AssetSprite, ".bmp": AssetSprite, ".tga": AssetSprite, ".gif": AssetSprite,
	".wav": AssetAudio, ".ogg": AssetAudio, ".mp3": AssetAudio, ".flac": AssetAudio,
	".lua": AssetScript,
	".ttf": AssetFont, ".otf": AssetFont, ".woff": AssetFont, ".woff2": AssetFont,
	".json": AssetData, ".xml": AssetData, ".yaml": AssetData, ".toml": AssetData, ".csv": AssetData,
}

// InferAssetType guesses an asset type from a file extension.
func InferAssetType(p string) (AssetType, bool) {
	t, ok := extensionTypes[strings.ToLower(path.Ext(p))]
	return t, ok
}
