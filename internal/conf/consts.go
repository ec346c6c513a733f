// conf/consts.go constants shared across the configuration package
package conf

// osWindows is used for runtime.GOOS comparisons.
const osWindows = "windows"

// appDirName is the directory name used under OS config locations.
const appDirName = "taxoclaim"
