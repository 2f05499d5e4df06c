package options

type StorageOptions struct {
	// 'LocalFileName' is an option that specifies what filename to use for (put|get)
	LocalFileName string `long:"local" short:"l" description:"local filename for put|get (default is to use the same name as 'grid filename')"`

	// 'ContentType' is an option that specifies the Content/MIME type to use for 'put'
	ContentType string `long:"type" short:"t" description:"Content/MIME type for put (default is text/plain)"`

	// if set, 'Replace' will remove other files with same name before 'put'
	Replace bool `long:"replace" short:"r" description:"Remove other files with same name before put"`

	// GridPrefix specifies what file bucket prefix to use; defaults to 'fs'
	GridPrefix string `long:"prefix" default:"fs" description:"file bucket prefix to use"`

	// ChunkSize overrides the default chunk size for put
	ChunkSize int `long:"chunkSize" description:"chunk size in bytes for put (default 262144)"`
}

func (o *StorageOptions) Name() string {
	return "storage"
}
